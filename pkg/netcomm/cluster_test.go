package netcomm_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/netcomm"
	"github.com/mash-protocol/matter-stack/pkg/netcomm/mocks"
	"github.com/mash-protocol/matter-stack/pkg/nvs"
	"github.com/mash-protocol/matter-stack/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func path(id uint32) wire.Path {
	return wire.Path{Endpoint: 0, Cluster: netcomm.ClusterID, ID: id}
}

func invoke(t *testing.T, c *netcomm.Cluster, id uint32, req any) (any, error) {
	t.Helper()
	args, err := wire.EncodePayload(req)
	require.NoError(t, err)
	return c.Invoke(context.Background(), path(id), args)
}

func newCluster(t *testing.T, cfg netcomm.Config) (*netcomm.Cluster, *mocks.MockDriver, *nvs.MemoryPartition, *nvs.Store) {
	t.Helper()
	part := nvs.NewMemoryPartition()
	store := nvs.NewStore(part, nil)
	driver := mocks.NewMockDriver(t)
	c, err := netcomm.New(store, driver, cfg)
	require.NoError(t, err)
	c.Arm()
	return c, driver, part, store
}

func addNetwork(t *testing.T, c *netcomm.Cluster, ssid, secret string) *netcomm.NetworkConfigResponse {
	t.Helper()
	out, err := invoke(t, c, netcomm.CmdAddOrUpdateWiFiNetwork, &netcomm.AddOrUpdateWiFiNetworkRequest{
		SSID:        []byte(ssid),
		Credentials: []byte(secret),
	})
	require.NoError(t, err)
	resp, ok := out.(*netcomm.NetworkConfigResponse)
	require.True(t, ok)
	return resp
}

func connect(t *testing.T, c *netcomm.Cluster, ssid string) (*netcomm.ConnectNetworkResponse, error) {
	t.Helper()
	out, err := invoke(t, c, netcomm.CmdConnectNetwork, &netcomm.ConnectNetworkRequest{NetworkID: []byte(ssid)})
	if err != nil {
		return nil, err
	}
	resp, ok := out.(*netcomm.ConnectNetworkResponse)
	require.True(t, ok)
	return resp, nil
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name    string
		ssid    string
		secret  string
		wantErr error
	}{
		{"open network", "cafe", "", nil},
		{"passphrase", "home", "correct horse", nil},
		{"max passphrase", "home", strings.Repeat("a", 63), nil},
		{"hex psk", "home", strings.Repeat("0aF9", 16), nil},
		{"empty ssid", "", "password", netcomm.ErrInvalidSSID},
		{"long ssid", strings.Repeat("s", 33), "password", netcomm.ErrInvalidSSID},
		{"short passphrase", "home", "1234567", netcomm.ErrInvalidKey},
		{"non printable", "home", "pass\x01word", netcomm.ErrInvalidKey},
		{"bad psk", "home", strings.Repeat("g", 64), netcomm.ErrInvalidKey},
		{"too long", "home", strings.Repeat("a", 65), netcomm.ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := netcomm.ValidateCredentials([]byte(tt.ssid), []byte(tt.secret))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, netcomm.DefaultConfig().Validate())

	cfg := netcomm.DefaultConfig()
	cfg.MaxNetworks = 0
	assert.Error(t, cfg.Validate())

	cfg = netcomm.DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Minute
	assert.Error(t, cfg.Validate())
}

func TestCommandsRequireArming(t *testing.T) {
	c, _, _, _ := newCluster(t, netcomm.DefaultConfig())
	c.Disarm()

	_, err := invoke(t, c, netcomm.CmdAddOrUpdateWiFiNetwork, &netcomm.AddOrUpdateWiFiNetworkRequest{SSID: []byte("x")})
	assert.Equal(t, wire.StatusFailsafeRequired, interaction.Status(err))

	// Reads stay available.
	v, err := c.Read(context.Background(), path(netcomm.AttrMaxNetworks))
	require.NoError(t, err)
	assert.Equal(t, uint8(netcomm.DefaultMaxNetworks), v)
}

func TestScanNetworks(t *testing.T) {
	cfg := netcomm.DefaultConfig()
	cfg.MaxScanResults = 2
	c, driver, _, _ := newCluster(t, cfg)

	driver.EXPECT().Scan(mock.Anything, []byte(nil)).Return([]netcomm.ScanResult{
		{SSID: []byte("a"), RSSI: -40, Security: netcomm.SecurityWPA2Personal},
		{SSID: []byte("b"), RSSI: -60, Security: netcomm.SecurityWPA3Personal},
		{SSID: []byte("c"), RSSI: -80, Security: netcomm.SecurityUnencrypted},
	}, nil).Once()

	out, err := invoke(t, c, netcomm.CmdScanNetworks, &netcomm.ScanNetworksRequest{})
	require.NoError(t, err)
	resp := out.(*netcomm.ScanNetworksResponse)
	assert.Equal(t, netcomm.StatusSuccess, resp.Status)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, []byte("a"), resp.Results[0].SSID)

	driver.EXPECT().Scan(mock.Anything, []byte("gone")).Return(nil, netcomm.ErrNetworkNotFound).Once()
	out, err = invoke(t, c, netcomm.CmdScanNetworks, &netcomm.ScanNetworksRequest{SSID: []byte("gone")})
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusNetworkNotFound, out.(*netcomm.ScanNetworksResponse).Status)
}

func TestAddUpdateRemoveReorder(t *testing.T) {
	cfg := netcomm.DefaultConfig()
	cfg.MaxNetworks = 2
	c, _, _, _ := newCluster(t, cfg)

	var changes int
	c.OnChange(func() { changes++ })

	resp := addNetwork(t, c, "alpha", "password1")
	assert.Equal(t, netcomm.StatusSuccess, resp.Status)
	require.NotNil(t, resp.NetworkIndex)
	assert.Equal(t, uint8(0), *resp.NetworkIndex)

	resp = addNetwork(t, c, "beta", "")
	assert.Equal(t, uint8(1), *resp.NetworkIndex)

	resp = addNetwork(t, c, "gamma", "password3")
	assert.Equal(t, netcomm.StatusBoundsExceeded, resp.Status)

	resp = addNetwork(t, c, "alpha", "password9")
	assert.Equal(t, netcomm.StatusSuccess, resp.Status)
	assert.Equal(t, uint8(0), *resp.NetworkIndex)
	assert.Equal(t, []byte("password9"), c.Networks()[0].Credentials)

	resp = addNetwork(t, c, "delta", "short")
	assert.Equal(t, netcomm.StatusOutOfRange, resp.Status)

	out, err := invoke(t, c, netcomm.CmdReorderNetwork, &netcomm.ReorderNetworkRequest{NetworkID: []byte("beta"), NetworkIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusSuccess, out.(*netcomm.NetworkConfigResponse).Status)
	assert.Equal(t, []byte("beta"), c.Networks()[0].SSID)

	out, err = invoke(t, c, netcomm.CmdReorderNetwork, &netcomm.ReorderNetworkRequest{NetworkID: []byte("beta"), NetworkIndex: 5})
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusOutOfRange, out.(*netcomm.NetworkConfigResponse).Status)

	out, err = invoke(t, c, netcomm.CmdRemoveNetwork, &netcomm.RemoveNetworkRequest{NetworkID: []byte("nope")})
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusNetworkIDNotFound, out.(*netcomm.NetworkConfigResponse).Status)

	out, err = invoke(t, c, netcomm.CmdRemoveNetwork, &netcomm.RemoveNetworkRequest{NetworkID: []byte("beta")})
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusSuccess, out.(*netcomm.NetworkConfigResponse).Status)
	require.Len(t, c.Networks(), 1)
	assert.Equal(t, []byte("alpha"), c.Networks()[0].SSID)

	assert.Equal(t, 5, changes)
}

func TestConnectCommitsOnSuccess(t *testing.T) {
	c, driver, _, store := newCluster(t, netcomm.DefaultConfig())

	var committed []netcomm.Credentials
	c.OnCommitted(func(creds netcomm.Credentials) { committed = append(committed, creds) })

	addNetwork(t, c, "home", "password1")
	driver.EXPECT().Connect(mock.Anything, netcomm.Credentials{SSID: []byte("home"), Credentials: []byte("password1")}).Return(nil).Once()

	resp, err := connect(t, c, "home")
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusSuccess, resp.Status)
	require.Len(t, committed, 1)

	stored, err := netcomm.LoadCredentials(store)
	require.NoError(t, err)
	assert.Equal(t, []byte("home"), stored.SSID)

	v, err := c.Read(context.Background(), path(netcomm.AttrNetworks))
	require.NoError(t, err)
	assert.Equal(t, []netcomm.NetworkInfo{{NetworkID: []byte("home"), Connected: true}}, v)

	v, err = c.Read(context.Background(), path(netcomm.AttrLastNetworkingStatus))
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusSuccess, v)
}

func TestFailedConnectKeepsPreviousCredentials(t *testing.T) {
	c, driver, _, store := newCluster(t, netcomm.DefaultConfig())

	addNetwork(t, c, "good", "password1")
	driver.EXPECT().Connect(mock.Anything, mock.Anything).Return(nil).Once()
	_, err := connect(t, c, "good")
	require.NoError(t, err)

	addNetwork(t, c, "bad", "password2")
	driver.EXPECT().Connect(mock.Anything, mock.Anything).Return(&netcomm.ConnectError{Status: netcomm.StatusAuthFailure, Value: 15}).Once()
	resp, err := connect(t, c, "bad")
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusAuthFailure, resp.Status)
	require.NotNil(t, resp.ErrorValue)
	assert.Equal(t, int32(15), *resp.ErrorValue)

	stored, err := netcomm.LoadCredentials(store)
	require.NoError(t, err)
	assert.Equal(t, []byte("good"), stored.SSID)
	assert.Equal(t, []byte("password1"), stored.Credentials)

	v, err := c.Read(context.Background(), path(netcomm.AttrLastConnectErrorValue))
	require.NoError(t, err)
	assert.Equal(t, int32(15), v)
	v, err = c.Read(context.Background(), path(netcomm.AttrLastNetworkID))
	require.NoError(t, err)
	assert.Equal(t, []byte("bad"), v)

	resp, err = connect(t, c, "unknown")
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusNetworkIDNotFound, resp.Status)
}

func TestCommitFailureAbortsAttempt(t *testing.T) {
	c, driver, part, store := newCluster(t, netcomm.DefaultConfig())

	committed := false
	c.OnCommitted(func(netcomm.Credentials) { committed = true })

	addNetwork(t, c, "home", "password1")
	driver.EXPECT().Connect(mock.Anything, mock.Anything).Return(nil).Once()
	driver.EXPECT().Disconnect().Return(nil).Once()

	part.FailWrites(errors.New("flash worn"))
	_, err := connect(t, c, "home")
	require.Error(t, err)
	assert.Equal(t, wire.StatusFailure, interaction.Status(err))
	assert.False(t, committed)

	part.FailWrites(nil)
	_, err = netcomm.LoadCredentials(store)
	assert.ErrorIs(t, err, netcomm.ErrNoNetwork)
}

func TestNonConcurrentConnectIsHandedOff(t *testing.T) {
	cfg := netcomm.DefaultConfig()
	cfg.Concurrent = false
	c, driver, _, store := newCluster(t, cfg)

	addNetwork(t, c, "home", "password1")

	ctx, cancel := context.WithCancel(context.Background())
	args, err := wire.EncodePayload(&netcomm.ConnectNetworkRequest{NetworkID: []byte("home")})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Invoke(ctx, path(netcomm.CmdConnectNetwork), args)
		done <- err
	}()

	var id []byte
	select {
	case id = <-c.ConnectRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("connect request not handed off")
	}
	assert.Equal(t, []byte("home"), id)

	// The exchange stays open until the commissioning link goes away.
	_, err = invoke(t, c, netcomm.CmdRemoveNetwork, &netcomm.RemoveNetworkRequest{NetworkID: []byte("home")})
	assert.Equal(t, wire.StatusBusy, interaction.Status(err))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	driver.EXPECT().Connect(mock.Anything, mock.Anything).Return(nil).Once()
	resp, err := c.Join(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusSuccess, resp.Status)

	_, err = netcomm.LoadCredentials(store)
	assert.NoError(t, err)
}

func TestReloadRestoresCommittedNetwork(t *testing.T) {
	part := nvs.NewMemoryPartition()
	store := nvs.NewStore(part, nil)
	require.NoError(t, nvs.Save(store, nvs.KeyWiFiCredentials, &netcomm.Credentials{SSID: []byte("home"), Credentials: []byte("password1")}))

	c, err := netcomm.New(store, mocks.NewMockDriver(t), netcomm.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, c.Networks(), 1)
	assert.Equal(t, []byte("home"), c.Networks()[0].SSID)

	require.NoError(t, store.Erase())
	require.NoError(t, c.Reload())
	assert.Empty(t, c.Networks())
}

func TestInterfaceEnabledWrite(t *testing.T) {
	c, driver, _, _ := newCluster(t, netcomm.DefaultConfig())
	ctx := context.Background()

	off, err := wire.EncodePayload(false)
	require.NoError(t, err)
	driver.EXPECT().Disconnect().Return(nil).Once()
	require.NoError(t, c.Write(ctx, path(netcomm.AttrInterfaceEnabled), off))

	v, err := c.Read(ctx, path(netcomm.AttrInterfaceEnabled))
	require.NoError(t, err)
	assert.Equal(t, false, v)

	err = c.Write(ctx, path(netcomm.AttrMaxNetworks), off)
	assert.Equal(t, wire.StatusUnsupportedWrite, interaction.Status(err))
}
