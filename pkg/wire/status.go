package wire

// Status is an interaction-model status code.
// Values follow the smart-home protocol's IM status enumeration.
type Status uint8

const (
	StatusSuccess              Status = 0x00
	StatusFailure              Status = 0x01
	StatusInvalidSubscription  Status = 0x7D
	StatusUnsupportedAccess    Status = 0x7E
	StatusUnsupportedEndpoint  Status = 0x7F
	StatusInvalidAction        Status = 0x80
	StatusUnsupportedCommand   Status = 0x81
	StatusInvalidCommand       Status = 0x85
	StatusUnsupportedAttribute Status = 0x86
	StatusConstraintError      Status = 0x87
	StatusUnsupportedWrite     Status = 0x88
	StatusResourceExhausted    Status = 0x89
	StatusNotFound             Status = 0x8B
	StatusTimeout              Status = 0x94
	StatusBusy                 Status = 0x9C
	StatusUnsupportedCluster   Status = 0xC3
	StatusFailsafeRequired     Status = 0xCA
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusInvalidSubscription:
		return "INVALID_SUBSCRIPTION"
	case StatusUnsupportedAccess:
		return "UNSUPPORTED_ACCESS"
	case StatusUnsupportedEndpoint:
		return "UNSUPPORTED_ENDPOINT"
	case StatusInvalidAction:
		return "INVALID_ACTION"
	case StatusUnsupportedCommand:
		return "UNSUPPORTED_COMMAND"
	case StatusInvalidCommand:
		return "INVALID_COMMAND"
	case StatusUnsupportedAttribute:
		return "UNSUPPORTED_ATTRIBUTE"
	case StatusConstraintError:
		return "CONSTRAINT_ERROR"
	case StatusUnsupportedWrite:
		return "UNSUPPORTED_WRITE"
	case StatusResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusBusy:
		return "BUSY"
	case StatusUnsupportedCluster:
		return "UNSUPPORTED_CLUSTER"
	case StatusFailsafeRequired:
		return "FAILSAFE_REQUIRED"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}
