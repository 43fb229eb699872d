package device

import "fmt"

// Fixed table sizes.
const (
	// MaxEndpointsPerInterface is the maximum number of endpoints per interface.
	MaxEndpointsPerInterface = 4

	// MaxInterfaces is the maximum number of interfaces in the configuration.
	MaxInterfaces = 8

	// MaxDescriptors is the maximum number of entries in a DescriptorTable.
	MaxDescriptors = 16

	// MaxControlDataSize is the largest control data stage the stack buffers.
	MaxControlDataSize = 512
)

// Descriptor types.
const (
	DescriptorTypeDevice          = 0x01
	DescriptorTypeConfiguration   = 0x02
	DescriptorTypeString          = 0x03
	DescriptorTypeDeviceQualifier = 0x06
)

// Device states.
const (
	StateAttached   State = 0 // Attached, not yet reset
	StateDefault    State = 1 // Reset, default address
	StateAddress    State = 2 // Address assigned
	StateConfigured State = 3 // Configuration selected
	StateSuspended  State = 4 // Bus suspended
)

// State represents the USB device state.
type State uint8

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateAttached:
		return "Attached"
	case StateDefault:
		return "Default"
	case StateAddress:
		return "Address"
	case StateConfigured:
		return "Configured"
	case StateSuspended:
		return "Suspended"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}

// BusEvent is a device-level event reported to the class layer.
type BusEvent uint8

// Bus events.
const (
	BusEventMount   BusEvent = iota // Host selected the configuration
	BusEventUnmount                 // Configuration lost (reset, disconnect, SET_CONFIGURATION 0)
	BusEventSuspend                 // Bus suspended
	BusEventResume                  // Bus resumed
)

// String returns the event name.
func (e BusEvent) String() string {
	switch e {
	case BusEventMount:
		return "mount"
	case BusEventUnmount:
		return "unmount"
	case BusEventSuspend:
		return "suspend"
	case BusEventResume:
		return "resume"
	default:
		return fmt.Sprintf("BusEvent(%d)", e)
	}
}
