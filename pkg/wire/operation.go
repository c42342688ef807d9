package wire

// Opcode is the interaction requested by a controller.
type Opcode uint8

const (
	// OpRead gets the current value of an attribute.
	OpRead Opcode = 1

	// OpWrite replaces the value of an attribute.
	OpWrite Opcode = 2

	// OpInvoke executes a cluster command.
	OpInvoke Opcode = 3

	// OpSubscribe registers for reports when an attribute changes.
	OpSubscribe Opcode = 4
)

// String returns the opcode name.
func (o Opcode) String() string {
	switch o {
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	case OpInvoke:
		return "Invoke"
	case OpSubscribe:
		return "Subscribe"
	default:
		return "Unknown"
	}
}

// IsValid returns true for the four defined opcodes.
func (o Opcode) IsValid() bool {
	return o >= OpRead && o <= OpSubscribe
}
