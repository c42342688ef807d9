package netcomm

import (
	"errors"
	"fmt"
	"time"
)

// ClusterID is the Network Commissioning cluster.
const ClusterID uint32 = 0x0031

// Attributes.
const (
	AttrMaxNetworks           uint32 = 0x0000
	AttrNetworks              uint32 = 0x0001
	AttrScanMaxTimeSeconds    uint32 = 0x0002
	AttrConnectMaxTimeSeconds uint32 = 0x0003
	AttrInterfaceEnabled      uint32 = 0x0004
	AttrLastNetworkingStatus  uint32 = 0x0005
	AttrLastNetworkID         uint32 = 0x0006
	AttrLastConnectErrorValue uint32 = 0x0007
)

// Commands.
const (
	CmdScanNetworks           uint32 = 0x00
	CmdAddOrUpdateWiFiNetwork uint32 = 0x02
	CmdRemoveNetwork          uint32 = 0x04
	CmdConnectNetwork         uint32 = 0x06
	CmdReorderNetwork         uint32 = 0x08
)

// Limits and defaults.
const (
	DefaultMaxNetworks    = 3
	DefaultMaxScanResults = 10
	ScanMaxTime           = 30 * time.Second
	ConnectMaxTime        = 60 * time.Second

	MaxSSIDLen       = 32
	MinPassphraseLen = 8
	MaxPassphraseLen = 63
	PSKHexLen        = 64
)

// Driver errors. Drivers wrap one of these (or return a *ConnectError) so
// the cluster can report a precise status.
var (
	ErrAuthFailure         = errors.New("authentication failed")
	ErrNetworkNotFound     = errors.New("network not found")
	ErrUnsupportedSecurity = errors.New("unsupported security")
	ErrRegulatory          = errors.New("regulatory domain mismatch")
	ErrIPBind              = errors.New("ip bind failed")
)

// Cluster errors.
var (
	ErrNotStaged   = errors.New("network not staged")
	ErrNoNetwork   = errors.New("no stored network credentials")
	ErrInvalidSSID = errors.New("invalid ssid")
	ErrInvalidKey  = errors.New("invalid passphrase")
)

// Status is the NetworkCommissioningStatus enumeration.
type Status uint8

const (
	StatusSuccess                Status = 0
	StatusOutOfRange             Status = 1
	StatusBoundsExceeded         Status = 2
	StatusNetworkIDNotFound      Status = 3
	StatusDuplicateNetworkID     Status = 4
	StatusNetworkNotFound        Status = 5
	StatusRegulatoryError        Status = 6
	StatusAuthFailure            Status = 7
	StatusUnsupportedSecurity    Status = 8
	StatusOtherConnectionFailure Status = 9
	StatusIPV6Failed             Status = 10
	StatusIPBindFailed           Status = 11
	StatusUnknownError           Status = 12
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusOutOfRange:
		return "OUT_OF_RANGE"
	case StatusBoundsExceeded:
		return "BOUNDS_EXCEEDED"
	case StatusNetworkIDNotFound:
		return "NETWORK_ID_NOT_FOUND"
	case StatusDuplicateNetworkID:
		return "DUPLICATE_NETWORK_ID"
	case StatusNetworkNotFound:
		return "NETWORK_NOT_FOUND"
	case StatusRegulatoryError:
		return "REGULATORY_ERROR"
	case StatusAuthFailure:
		return "AUTH_FAILURE"
	case StatusUnsupportedSecurity:
		return "UNSUPPORTED_SECURITY"
	case StatusOtherConnectionFailure:
		return "OTHER_CONNECTION_FAILURE"
	case StatusIPV6Failed:
		return "IPV6_FAILED"
	case StatusIPBindFailed:
		return "IP_BIND_FAILED"
	case StatusUnknownError:
		return "UNKNOWN_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Security is the WiFiSecurityBitmap.
type Security uint8

const (
	SecurityUnencrypted  Security = 0x01
	SecurityWEP          Security = 0x02
	SecurityWPAPersonal  Security = 0x04
	SecurityWPA2Personal Security = 0x08
	SecurityWPA3Personal Security = 0x10
)

// Credentials identify a WiFi network and carry its secret. Persisted
// CBOR-encoded under nvs.KeyWiFiCredentials.
type Credentials struct {
	SSID        []byte `cbor:"1,keyasint"`
	Credentials []byte `cbor:"2,keyasint"`
}

// String hides the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("ssid=%q", c.SSID)
}

// ScanResult is one access point found by a scan.
type ScanResult struct {
	Security Security `cbor:"0,keyasint"`
	SSID     []byte   `cbor:"1,keyasint"`
	BSSID    []byte   `cbor:"2,keyasint"`
	Channel  uint16   `cbor:"3,keyasint"`
	RSSI     int8     `cbor:"5,keyasint"`
}

// NetworkInfo is an entry of the Networks attribute.
type NetworkInfo struct {
	NetworkID []byte `cbor:"0,keyasint"`
	Connected bool   `cbor:"1,keyasint"`
}

// ConnectError is returned by a Driver that knows the exact status and the
// vendor-specific reason code of a failed association.
type ConnectError struct {
	Status Status
	Value  int32
}

// Error implements error.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed: %s (%d)", e.Status, e.Value)
}

// Requests and responses.

// ScanNetworksRequest limits a scan to one SSID when set.
type ScanNetworksRequest struct {
	SSID []byte `cbor:"0,keyasint,omitempty"`
}

// ScanNetworksResponse answers ScanNetworks.
type ScanNetworksResponse struct {
	Status    Status       `cbor:"0,keyasint"`
	DebugText string       `cbor:"1,keyasint,omitempty"`
	Results   []ScanResult `cbor:"2,keyasint,omitempty"`
}

// AddOrUpdateWiFiNetworkRequest stages credentials.
type AddOrUpdateWiFiNetworkRequest struct {
	SSID        []byte `cbor:"0,keyasint"`
	Credentials []byte `cbor:"1,keyasint"`
}

// RemoveNetworkRequest drops staged credentials.
type RemoveNetworkRequest struct {
	NetworkID []byte `cbor:"0,keyasint"`
}

// ConnectNetworkRequest joins a staged network.
type ConnectNetworkRequest struct {
	NetworkID []byte `cbor:"0,keyasint"`
}

// ReorderNetworkRequest moves a staged network to a new position.
type ReorderNetworkRequest struct {
	NetworkID    []byte `cbor:"0,keyasint"`
	NetworkIndex uint8  `cbor:"1,keyasint"`
}

// NetworkConfigResponse answers AddOrUpdate, Remove and Reorder.
type NetworkConfigResponse struct {
	Status       Status `cbor:"0,keyasint"`
	DebugText    string `cbor:"1,keyasint,omitempty"`
	NetworkIndex *uint8 `cbor:"2,keyasint,omitempty"`
}

// ConnectNetworkResponse answers ConnectNetwork.
type ConnectNetworkResponse struct {
	Status     Status `cbor:"0,keyasint"`
	DebugText  string `cbor:"1,keyasint,omitempty"`
	ErrorValue *int32 `cbor:"2,keyasint,omitempty"`
}
