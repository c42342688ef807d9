package stack_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/mash-protocol/matter-stack/internal/hostsim"
	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/nvs"
	"github.com/mash-protocol/matter-stack/pkg/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkStep uint8

const (
	stepDown linkStep = iota
	stepUp
	stepReset
)

func (s linkStep) String() string {
	return [...]string{"down", "up", "reset"}[s]
}

// settle is long enough for the 50ms debounce to expire.
const settle = 200 * time.Millisecond

func TestRunFollowsRandomConnectivity(t *testing.T) {
	for seed := uint64(1); seed <= 3; seed++ {
		t.Run("", func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, 7))

			part := nvs.NewMemoryPartition()
			commissionEthernet(t, part)
			d := newDevice(t, deviceOptions{part: part})
			d.run(t)
			d.waitMode(t, stack.Operating)
			d.link.Up(hostsim.StationAddr)

			want := stack.Operating
			for i := range 12 {
				step := stepReset
				// Link events are only consumed while on the network.
				if want != stack.Commissioning {
					step = linkStep(rng.IntN(3))
				}

				from := want
				switch step {
				case stepDown:
					d.link.Down()
					if want == stack.Operating {
						want = stack.Reconnecting
					}
				case stepUp:
					d.link.Up(hostsim.StationAddr)
					if want == stack.Reconnecting {
						want = stack.Operating
					}
				case stepReset:
					require.NoError(t, d.stack.FactoryReset())
					want = stack.Commissioning
				}

				if want == from && step != stepReset {
					require.Never(t, func() bool { return d.stack.Mode() != want }, settle, tick,
						"step %d: %s in %s", i, step, from)
					continue
				}
				require.Eventually(t, func() bool { return d.stack.Mode() == want }, waitFor, tick,
					"step %d: %s in %s, want %s", i, step, from, want)
				if step == stepReset {
					// Uncommissioned is passed through on the way.
					require.Eventually(t, func() bool { return d.modes.saw(stack.Uncommissioned) }, waitFor, tick)
				}
			}

			ok, err := d.stack.IsCommissioned()
			require.NoError(t, err)
			assert.Equal(t, want != stack.Commissioning, ok)
		})
	}
}

func TestDebouncedFlapReannouncesRecords(t *testing.T) {
	part := nvs.NewMemoryPartition()
	commissionEthernet(t, part)

	d := newDevice(t, deviceOptions{
		part:   part,
		config: func(c *stack.Config) { c.Debounce = 300 * time.Millisecond },
	})
	d.run(t)
	d.waitMode(t, stack.Operating)
	d.link.Up(hostsim.StationAddr)
	require.Eventually(t, func() bool {
		return len(d.adv.Records(discovery.ServiceTypeOperational)) == 1
	}, waitFor, tick)

	// Let the announcements of the first link up finish.
	before := -1
	require.Eventually(t, func() bool {
		n := d.adv.Registered()
		settled := n == before
		before = n
		return settled
	}, waitFor, settle)

	d.link.Down()
	d.link.Up(hostsim.StationAddr)

	require.Eventually(t, func() bool { return d.adv.Registered() > before }, waitFor, tick,
		"records were not announced again after the flap")
	assert.Len(t, d.adv.Records(discovery.ServiceTypeOperational), 1)
	assert.False(t, d.modes.saw(stack.Reconnecting), "the flap stayed inside the debounce window")
}
