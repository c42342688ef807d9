package stack

// Mode is the operating mode of the device.
type Mode uint8

const (
	// Uncommissioned is the mode at boot and after a factory reset.
	Uncommissioned Mode = iota

	// Commissioning advertises over BLE and serves the provisioning cluster.
	Commissioning

	// Operating serves the protocol over the IP network.
	Operating

	// Reconnecting keeps protocol state while the network is lost.
	Reconnecting
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Uncommissioned:
		return "UNCOMMISSIONED"
	case Commissioning:
		return "COMMISSIONING"
	case Operating:
		return "OPERATING"
	case Reconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// EventKind classifies connectivity and lifecycle events.
type EventKind uint8

const (
	EventNetworkUp EventKind = iota
	EventNetworkDown
	EventCommissioningComplete
	EventCommissioningTimeout
	EventFactoryReset
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventNetworkUp:
		return "NETWORK_UP"
	case EventNetworkDown:
		return "NETWORK_DOWN"
	case EventCommissioningComplete:
		return "COMMISSIONING_COMPLETE"
	case EventCommissioningTimeout:
		return "COMMISSIONING_TIMEOUT"
	case EventFactoryReset:
		return "FACTORY_RESET"
	default:
		return "UNKNOWN"
	}
}

// Event is one input of the mode state machine.
type Event struct {
	Kind EventKind
}

// Initial returns the mode entered from Uncommissioned when the stack
// starts.
func Initial(commissioned bool) Mode {
	if commissioned {
		return Operating
	}
	return Commissioning
}

// Next returns the mode after ev is applied to m. Pairs without a
// transition leave the mode unchanged.
func Next(m Mode, ev Event) Mode {
	switch ev.Kind {
	case EventFactoryReset:
		return Uncommissioned
	case EventCommissioningComplete:
		if m == Commissioning {
			return Operating
		}
	case EventNetworkDown:
		if m == Operating {
			return Reconnecting
		}
	case EventNetworkUp:
		if m == Reconnecting {
			return Operating
		}
	case EventCommissioningTimeout:
		// Commissioning re-advertises in place.
	}
	return m
}
