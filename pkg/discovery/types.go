package discovery

import (
	"errors"
	"maps"
	"slices"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypeCommissionable is the service type for devices in commissioning mode.
	ServiceTypeCommissionable = "_matterc._udp"

	// ServiceTypeOperational is the service type for commissioned devices.
	ServiceTypeOperational = "_matter._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default operational and commissioning port.
	DefaultPort = 5540
)

// TXT record key constants.
const (
	// Commissionable TXT keys
	TXTKeyDiscriminator = "D"  // Discriminator (0-4095)
	TXTKeyCommissioning = "CM" // Commissioning mode
	TXTKeyVendorProduct = "VP" // Vendor+Product ID
	TXTKeyDeviceType    = "DT" // Primary device type (optional)
	TXTKeyDeviceName    = "DN" // Device name (optional)
	TXTKeyPairingHint   = "PH" // Pairing hint bitmap (optional)

	// Shared TXT keys
	TXTKeyIdleInterval   = "SII" // Session idle interval in ms
	TXTKeyActiveInterval = "SAI" // Session active interval in ms

	// Operational TXT keys
	TXTKeyTCP = "T" // TCP support bitmap
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxDeviceNameLen is the maximum DN value length.
	MaxDeviceNameLen = 32

	// MaxDiscriminator is the maximum discriminator value (12 bits).
	MaxDiscriminator = 4095
)

// Errors.
var (
	ErrInvalidDiscriminator = errors.New("discriminator out of range")
	ErrInvalidPasscode      = errors.New("invalid setup passcode")
	ErrInstanceNameTooLong  = errors.New("instance name exceeds 63 characters")
	ErrInvalidInstanceName  = errors.New("invalid instance name")
	ErrInvalidRecord        = errors.New("invalid discovery record")
	ErrClosed               = errors.New("advertiser closed")
)

// CommissioningMode is the CM TXT value.
type CommissioningMode uint8

const (
	// CommissioningDisabled means the device is not accepting commissioning.
	CommissioningDisabled CommissioningMode = 0

	// CommissioningBasic means the device opened its window after boot
	// or a factory reset.
	CommissioningBasic CommissioningMode = 1

	// CommissioningEnhanced means an administrator opened the window.
	CommissioningEnhanced CommissioningMode = 2
)

// CommissionableInfo contains information for commissionable discovery.
type CommissionableInfo struct {
	// Instance is the persisted 16-hex-digit instance name.
	Instance string

	// Discriminator is the 12-bit value printed with the setup code.
	Discriminator uint16

	Mode      CommissioningMode
	VendorID  uint16
	ProductID uint16

	// DeviceType is the primary device type (optional).
	DeviceType uint32

	// DeviceName is the user-facing name (optional).
	DeviceName string

	// PairingHint tells commissioners how to put the device into
	// commissioning mode (optional).
	PairingHint uint16

	// SessionIdleInterval and SessionActiveInterval are the retransmission
	// intervals advertised to peers (optional).
	SessionIdleInterval   time.Duration
	SessionActiveInterval time.Duration

	// Port is the UDP port (0 uses DefaultPort).
	Port uint16
}

// ShortDiscriminator returns the upper 4 bits of the discriminator.
func (c *CommissionableInfo) ShortDiscriminator() uint8 {
	return uint8(c.Discriminator >> 8)
}

// OperationalInfo contains information for operational discovery of one
// fabric membership.
type OperationalInfo struct {
	CompressedFabricID uint64
	NodeID             uint64

	SessionIdleInterval   time.Duration
	SessionActiveInterval time.Duration

	// TCP advertises TCP support in the T key.
	TCP bool

	// Port is the UDP port (0 uses DefaultPort).
	Port uint16
}

// Metadata is the discovery state persisted across reboots.
type Metadata struct {
	// Instance is the commissionable instance name.
	Instance string `cbor:"1,keyasint"`
}

// Record is one DNS-SD service instance.
type Record struct {
	Service  string
	Instance string
	Port     uint16
	TXT      TXTRecordMap
	Subtypes []string
}

// Key identifies the record independently of its TXT contents.
func (r *Record) Key() string {
	return r.Instance + "." + r.Service
}

// Equal reports whether two records would produce identical announcements.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Service == o.Service &&
		r.Instance == o.Instance &&
		r.Port == o.Port &&
		maps.Equal(r.TXT, o.TXT) &&
		slices.Equal(r.Subtypes, o.Subtypes)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.TXT = maps.Clone(r.TXT)
	c.Subtypes = slices.Clone(r.Subtypes)
	return &c
}

// Validate checks the record before registration.
func (r *Record) Validate() error {
	if r.Service != ServiceTypeCommissionable && r.Service != ServiceTypeOperational {
		return ErrInvalidRecord
	}
	if err := ValidateInstanceName(r.Instance); err != nil {
		return err
	}
	if r.Port == 0 {
		return ErrInvalidRecord
	}
	return nil
}
