package hal

import "time"

// I2S slot and frame geometry used by the headset codec link.
const (
	// I2SSlotBits is the width of one I2S slot.
	I2SSlotBits = 32

	// I2SSlots is the number of slots per frame (left and right).
	I2SSlots = 2

	// I2SFrameBytes is the size of one hardware frame.
	I2SFrameBytes = I2SSlots * I2SSlotBits / 8
)

// I2SFormat selects the slot framing.
type I2SFormat uint8

// I2S framing standards.
const (
	I2SFormatPhilips I2SFormat = iota // Data delayed one bit after WS edge
	I2SFormatMSB                      // Left justified
	I2SFormatPCM                      // Short frame sync
)

// String returns the framing name.
func (f I2SFormat) String() string {
	switch f {
	case I2SFormatPhilips:
		return "philips"
	case I2SFormatMSB:
		return "msb"
	case I2SFormatPCM:
		return "pcm"
	default:
		return "unknown"
	}
}

// I2SConfig describes the channel pair to open.
type I2SConfig struct {
	SampleRate  uint32    // Frames per second
	SlotBits    uint8     // Bits per slot
	Slots       uint8     // Slots per frame
	Format      I2SFormat // Framing standard
	DMADescNum  int       // Number of DMA descriptors
	DMAFrameNum int       // Frames per DMA descriptor
}

// DMABufferBytes returns the size of one DMA descriptor buffer.
func (c *I2SConfig) DMABufferBytes() int {
	return c.DMAFrameNum * int(c.Slots) * int(c.SlotBits) / 8
}

// I2SPort is the contract for the I2S peripheral driving the codec. One
// port carries a TX channel (speaker) and an RX channel (microphone) that
// share the same clock.
//
// Read and Write move whole bytes of interleaved 32-bit little-endian
// slots. They return the count actually transferred; a count short of the
// request together with pkg.ErrTimeout means the timeout expired.
type I2SPort interface {
	// Open allocates both channels with cfg. Channels start disabled.
	Open(cfg I2SConfig) error

	// Enable starts both channels.
	Enable() error

	// Disable stops both channels.
	Disable() error

	// Delete releases both channels. The port may be opened again.
	Delete() error

	// Preload queues data on the TX channel before it is enabled and
	// returns the number of bytes accepted.
	Preload(data []byte) (int, error)

	// Read receives from the RX channel.
	Read(buf []byte, timeout time.Duration) (int, error)

	// Write sends on the TX channel.
	Write(data []byte, timeout time.Duration) (int, error)
}
