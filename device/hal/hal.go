package hal

import (
	"context"
)

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants.
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// EndpointConfig describes a hardware endpoint to open when the device is
// configured.
type EndpointConfig struct {
	Address       uint8  // Endpoint address including direction bit
	Attributes    uint8  // Transfer type and sync/usage flags
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Service interval
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *EndpointConfig) IsIn() bool {
	return e.Address&0x80 != 0
}

// TransferType returns the transfer type bits.
func (e *EndpointConfig) TransferType() uint8 {
	return e.Attributes & 0x03
}

// SetupPacket is the raw 8-byte SETUP packet as delivered by the controller.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// DeviceHAL is the contract between the device stack and a USB device
// controller.
//
// Bus events are reported through ReadSetup: it returns pkg.ErrReset after
// a bus reset, pkg.ErrSuspend and pkg.ErrResume around a suspend period,
// and pkg.ErrNoDevice when the host disconnects. Any other error is treated
// as transient.
//
// All methods must be safe for concurrent use; the stack services EP0 and
// the streaming endpoints from different goroutines.
type DeviceHAL interface {
	// Init initializes the controller.
	Init(ctx context.Context) error

	// Start attaches to the bus.
	Start() error

	// Stop detaches from the bus.
	Stop() error

	// SetAddress programs the device address. Called after the status stage
	// of SET_ADDRESS.
	SetAddress(address uint8) error

	// ConfigureEndpoints opens the given endpoints. An empty slice closes all
	// non-control endpoints.
	ConfigureEndpoints(endpoints []EndpointConfig) error

	// ReadSetup blocks until a SETUP packet or bus event arrives.
	ReadSetup(ctx context.Context, out *SetupPacket) error

	// WriteEP0 sends the IN data stage of a control transfer.
	WriteEP0(ctx context.Context, data []byte) error

	// ReadEP0 receives the OUT data stage (or the zero-length status stage
	// of an IN transfer) of a control transfer.
	ReadEP0(ctx context.Context, buf []byte) (int, error)

	// StallEP0 stalls the control endpoint until the next SETUP.
	StallEP0() error

	// AckEP0 sends the zero-length status stage of an OUT transfer.
	AckEP0() error

	// Available returns the number of bytes waiting on an OUT endpoint.
	Available(address uint8) int

	// Read reads up to len(buf) bytes from an OUT endpoint.
	Read(ctx context.Context, address uint8, buf []byte) (int, error)

	// Write queues data on an IN endpoint.
	Write(ctx context.Context, address uint8, data []byte) (int, error)

	// IsConnected returns true while a host is attached.
	IsConnected() bool

	// GetSpeed returns the negotiated speed.
	GetSpeed() Speed

	// WaitConnect blocks until a host attaches or ctx is cancelled.
	WaitConnect(ctx context.Context) error
}
