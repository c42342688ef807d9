package examples_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/examples"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onOffPath(id uint32) wire.Path {
	return wire.Path{Endpoint: examples.LightEndpoint, Cluster: examples.OnOffClusterID, ID: id}
}

func levelPath(id uint32) wire.Path {
	return wire.Path{Endpoint: examples.LightEndpoint, Cluster: examples.LevelControlClusterID, ID: id}
}

func TestLightOnOff(t *testing.T) {
	var changes atomic.Int32
	light := examples.NewLight(examples.LightConfig{OnChange: func() { changes.Add(1) }})
	h := light.Handler()
	ctx := context.Background()

	v, err := h.Read(ctx, onOffPath(examples.AttrOnOff))
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = h.Invoke(ctx, onOffPath(examples.CmdOn), nil)
	require.NoError(t, err)
	assert.True(t, light.On())

	// Switching on an already-on light changes nothing.
	_, err = h.Invoke(ctx, onOffPath(examples.CmdOn), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), changes.Load())

	_, err = h.Invoke(ctx, onOffPath(examples.CmdToggle), nil)
	require.NoError(t, err)
	assert.False(t, light.On())

	_, err = h.Invoke(ctx, onOffPath(examples.CmdOff), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), changes.Load())

	_, err = h.Invoke(ctx, onOffPath(0x40), nil)
	assert.Equal(t, wire.StatusUnsupportedCommand, interaction.Status(err))
	err = h.Write(ctx, onOffPath(examples.AttrOnOff), nil)
	assert.Equal(t, wire.StatusUnsupportedWrite, interaction.Status(err))
}

func TestLightLevel(t *testing.T) {
	light := examples.NewLight(examples.LightConfig{MinLevel: 10, MaxLevel: 200})
	h := light.Handler()
	ctx := context.Background()

	v, err := h.Read(ctx, levelPath(examples.AttrCurrentLevel))
	require.NoError(t, err)
	assert.Equal(t, uint8(200), v)

	args, err := wire.EncodePayload(&examples.MoveToLevelRequest{Level: 50})
	require.NoError(t, err)
	_, err = h.Invoke(ctx, levelPath(examples.CmdMoveToLevel), args)
	require.NoError(t, err)
	assert.Equal(t, uint8(50), light.Level())

	args, err = wire.EncodePayload(&examples.MoveToLevelRequest{Level: 5})
	require.NoError(t, err)
	_, err = h.Invoke(ctx, levelPath(examples.CmdMoveToLevel), args)
	assert.Equal(t, wire.StatusConstraintError, interaction.Status(err))
	assert.Equal(t, uint8(50), light.Level())

	v, err = h.Read(ctx, levelPath(examples.AttrMinLevel))
	require.NoError(t, err)
	assert.Equal(t, uint8(10), v)
}

func TestLightOtherClusters(t *testing.T) {
	h := examples.NewLight(examples.LightConfig{}).Handler()
	_, err := h.Read(context.Background(), wire.Path{Endpoint: 0, Cluster: examples.OnOffClusterID})
	assert.Equal(t, wire.StatusUnsupportedCluster, interaction.Status(err))
}

func TestLightSimulate(t *testing.T) {
	var changes atomic.Int32
	light := examples.NewLight(examples.LightConfig{OnChange: func() { changes.Add(1) }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- light.Simulate(5 * time.Millisecond)(ctx) }()

	require.Eventually(t, func() bool { return changes.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
