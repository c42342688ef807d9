package log

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Capture records are self-delimiting CBOR items written back to back,
// so a file can be appended to after a restart without any framing.
var (
	captureEnc cbor.EncMode
	captureDec cbor.DecMode
)

func init() {
	enc, err := cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture encoder: %v", err))
	}
	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthForbidden,
		MaxNestedLevels:   8,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture decoder: %v", err))
	}
	captureEnc, captureDec = enc, dec
}

// EncodeEvent encodes one capture record.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEnc.Marshal(event)
}

// DecodeEvent decodes a single capture record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := captureDec.Unmarshal(data, &event)
	return event, err
}

// NewDecoder returns a decoder for a stream of capture records.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return captureDec.NewDecoder(r)
}

// tornRecord reports whether err means the stream ended part way through
// a record, as happens when power is lost during a flash write.
func tornRecord(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF)
}
