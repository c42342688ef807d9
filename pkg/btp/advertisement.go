package btp

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// GATT identities of the commissioning service.
var (
	ServiceUUID = uuid.MustParse("0000FFF6-0000-1000-8000-00805F9B34FB")
	C1UUID      = uuid.MustParse("18EE2EF5-263D-4559-959F-4F9C429F9D11")
	C2UUID      = uuid.MustParse("18EE2EF5-263D-4559-959F-4F9C429F9D12")
	C3UUID      = uuid.MustParse("64630238-8772-45F2-B87D-748A83218F04")
)

// ServiceUUID16 is the 16-bit alias of ServiceUUID used in service data.
const ServiceUUID16 uint16 = 0xFFF6

// MaxDiscriminator is the largest 12-bit discriminator.
const MaxDiscriminator = 0x0FFF

const advertisementLen = 8

// Advertisement is the service data broadcast while commissioning.
type Advertisement struct {
	Discriminator uint16
	VendorID      uint16
	ProductID     uint16

	// AdditionalData announces the C3 characteristic.
	AdditionalData bool
}

// MarshalBinary encodes the service data payload.
func (a *Advertisement) MarshalBinary() ([]byte, error) {
	if a.Discriminator > MaxDiscriminator {
		return nil, fmt.Errorf("discriminator %d out of range", a.Discriminator)
	}
	buf := make([]byte, advertisementLen)
	buf[0] = 0x00 // commissionable
	binary.LittleEndian.PutUint16(buf[1:], a.Discriminator)
	binary.LittleEndian.PutUint16(buf[3:], a.VendorID)
	binary.LittleEndian.PutUint16(buf[5:], a.ProductID)
	if a.AdditionalData {
		buf[7] = 0x01
	}
	return buf, nil
}

// UnmarshalBinary decodes service data.
func (a *Advertisement) UnmarshalBinary(data []byte) error {
	if len(data) < advertisementLen || data[0] != 0x00 {
		return fmt.Errorf("invalid advertisement")
	}
	a.Discriminator = binary.LittleEndian.Uint16(data[1:]) & MaxDiscriminator
	a.VendorID = binary.LittleEndian.Uint16(data[3:])
	a.ProductID = binary.LittleEndian.Uint16(data[5:])
	a.AdditionalData = data[7]&0x01 != 0
	return nil
}
