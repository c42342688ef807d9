package discovery

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeCommissionableTXT creates TXT records for commissionable discovery.
func EncodeCommissionableTXT(info *CommissionableInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyDiscriminator] = strconv.FormatUint(uint64(info.Discriminator), 10)
	txt[TXTKeyCommissioning] = strconv.FormatUint(uint64(info.Mode), 10)
	txt[TXTKeyVendorProduct] = fmt.Sprintf("%d+%d", info.VendorID, info.ProductID)

	// Optional fields
	if info.DeviceType != 0 {
		txt[TXTKeyDeviceType] = strconv.FormatUint(uint64(info.DeviceType), 10)
	}
	if info.DeviceName != "" {
		name := info.DeviceName
		if len(name) > MaxDeviceNameLen {
			name = name[:MaxDeviceNameLen]
		}
		txt[TXTKeyDeviceName] = name
	}
	if info.PairingHint != 0 {
		txt[TXTKeyPairingHint] = strconv.FormatUint(uint64(info.PairingHint), 10)
	}
	encodeIntervals(txt, info.SessionIdleInterval, info.SessionActiveInterval)

	return txt
}

// EncodeOperationalTXT creates TXT records for operational discovery.
func EncodeOperationalTXT(info *OperationalInfo) TXTRecordMap {
	txt := make(TXTRecordMap)
	encodeIntervals(txt, info.SessionIdleInterval, info.SessionActiveInterval)
	if info.TCP {
		txt[TXTKeyTCP] = "1"
	} else {
		txt[TXTKeyTCP] = "0"
	}
	return txt
}

func encodeIntervals(txt TXTRecordMap, idle, active time.Duration) {
	if idle > 0 {
		txt[TXTKeyIdleInterval] = strconv.FormatInt(idle.Milliseconds(), 10)
	}
	if active > 0 {
		txt[TXTKeyActiveInterval] = strconv.FormatInt(active.Milliseconds(), 10)
	}
}

// CommissionableRecord builds the commissionable record for info.
func CommissionableRecord(info *CommissionableInfo) (*Record, error) {
	if info.Discriminator > MaxDiscriminator {
		return nil, ErrInvalidDiscriminator
	}
	if err := ValidateInstanceName(info.Instance); err != nil {
		return nil, err
	}

	port := info.Port
	if port == 0 {
		port = DefaultPort
	}

	subtypes := []string{
		fmt.Sprintf("_L%d", info.Discriminator),
		fmt.Sprintf("_S%d", info.ShortDiscriminator()),
	}
	if info.VendorID != 0 {
		subtypes = append(subtypes, fmt.Sprintf("_V%d", info.VendorID))
	}
	if info.Mode != CommissioningDisabled {
		subtypes = append(subtypes, "_CM")
	}

	return &Record{
		Service:  ServiceTypeCommissionable,
		Instance: info.Instance,
		Port:     port,
		TXT:      EncodeCommissionableTXT(info),
		Subtypes: subtypes,
	}, nil
}

// OperationalRecord builds the operational record for one fabric membership.
func OperationalRecord(info *OperationalInfo) *Record {
	port := info.Port
	if port == 0 {
		port = DefaultPort
	}
	return &Record{
		Service:  ServiceTypeOperational,
		Instance: OperationalInstanceName(info.CompressedFabricID, info.NodeID),
		Port:     port,
		TXT:      EncodeOperationalTXT(info),
		Subtypes: []string{fmt.Sprintf("_I%016X", info.CompressedFabricID)},
	}
}

// OperationalInstanceName formats <compressed-fabric-id>-<node-id>.
func OperationalInstanceName(compressedFabricID, nodeID uint64) string {
	return fmt.Sprintf("%016X-%016X", compressedFabricID, nodeID)
}

// NewInstanceName returns a random commissionable instance name.
func NewInstanceName() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%016X", binary.BigEndian.Uint64(b[:]))
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings.
// The result is sorted so repeated announcements are byte-identical.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	slices.Sort(result)
	return result
}

// serviceWithSubtypes renders the service string with comma-separated
// subtypes, which is how zeroconf registers subtype PTR records.
func serviceWithSubtypes(rec *Record) string {
	if len(rec.Subtypes) == 0 {
		return rec.Service
	}
	return rec.Service + "," + strings.Join(rec.Subtypes, ",")
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidInstanceName)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	if strings.ContainsAny(name, ".,") {
		return fmt.Errorf("%w: %q", ErrInvalidInstanceName, name)
	}
	return nil
}
