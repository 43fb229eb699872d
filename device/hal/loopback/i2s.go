package loopback

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/pkg"
)

// DefaultPlaybackLimit bounds the number of slots Codec records.
const DefaultPlaybackLimit = 1 << 16

// Generator returns the next RX slot pair. It is called once per
// hardware frame when the RX queue is empty.
type Generator func() (left, right int32)

// Codec is an in-memory hal.I2SPort. TX slots are recorded for
// inspection; RX frames come from a queue filled by Feed or from a
// Generator.
type Codec struct {
	mutex sync.Mutex

	config    hal.I2SConfig
	opened    bool
	enabled   bool
	opens     int
	preloaded int

	played        []int32
	playbackLimit int
	rx            []int32
	generator     Generator

	// Per-call transfer limits in bytes; 0 means unlimited.
	txLimit int
	rxLimit int
}

// NewCodec creates a codec with no RX source. Reads return zeros.
func NewCodec() *Codec {
	return &Codec{playbackLimit: DefaultPlaybackLimit}
}

// Open implements hal.I2SPort.
func (c *Codec) Open(cfg hal.I2SConfig) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.opened {
		return pkg.ErrBusy
	}
	if cfg.SlotBits != hal.I2SSlotBits || cfg.Slots != hal.I2SSlots {
		return pkg.ErrInvalidParameter
	}
	c.config = cfg
	c.opened = true
	c.enabled = false
	c.preloaded = 0
	c.opens++
	pkg.LogDebug(pkg.ComponentI2S, "loopback codec opened",
		"rate", cfg.SampleRate,
		"dmaFrames", cfg.DMAFrameNum)
	return nil
}

// Enable implements hal.I2SPort.
func (c *Codec) Enable() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.opened {
		return pkg.ErrTransportClosed
	}
	c.enabled = true
	return nil
}

// Disable implements hal.I2SPort.
func (c *Codec) Disable() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.opened {
		return pkg.ErrTransportClosed
	}
	c.enabled = false
	return nil
}

// Delete implements hal.I2SPort.
func (c *Codec) Delete() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.opened = false
	c.enabled = false
	return nil
}

// Preload implements hal.I2SPort. Preloaded bytes are counted but not
// recorded as played.
func (c *Codec) Preload(data []byte) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.opened {
		return 0, pkg.ErrTransportClosed
	}
	if c.enabled {
		return 0, pkg.ErrInvalidState
	}
	n := len(data)
	if limit := c.config.DMABufferBytes() * c.config.DMADescNum; n > limit {
		n = limit
	}
	c.preloaded += n
	return n, nil
}

// Write implements hal.I2SPort.
func (c *Codec) Write(data []byte, timeout time.Duration) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.enabled {
		return 0, pkg.ErrTransportClosed
	}

	n := len(data) &^ 3
	var err error
	if c.txLimit > 0 && n > c.txLimit {
		n = c.txLimit &^ 3
		err = pkg.ErrTimeout
	}
	for i := 0; i < n; i += 4 {
		c.played = append(c.played, int32(binary.LittleEndian.Uint32(data[i:])))
	}
	if over := len(c.played) - c.playbackLimit; over > 0 {
		c.played = append(c.played[:0], c.played[over:]...)
	}
	return n, err
}

// Read implements hal.I2SPort.
func (c *Codec) Read(buf []byte, timeout time.Duration) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.enabled {
		return 0, pkg.ErrTransportClosed
	}

	n := len(buf) &^ 3
	var err error
	if c.rxLimit > 0 && n > c.rxLimit {
		n = c.rxLimit &^ 3
		err = pkg.ErrTimeout
	}
	for i := 0; i < n; i += 4 {
		binary.LittleEndian.PutUint32(buf[i:], uint32(c.nextSlot()))
	}
	return n, err
}

// nextSlot must be called with the mutex held.
func (c *Codec) nextSlot() int32 {
	if len(c.rx) == 0 && c.generator != nil {
		l, r := c.generator()
		c.rx = append(c.rx, l, r)
	}
	if len(c.rx) == 0 {
		return 0
	}
	v := c.rx[0]
	c.rx = c.rx[1:]
	return v
}

// Feed queues interleaved RX slots.
func (c *Codec) Feed(slots ...int32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.rx = append(c.rx, slots...)
}

// SetGenerator installs the RX source used when the queue is empty.
func (c *Codec) SetGenerator(g Generator) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.generator = g
}

// SetTransferLimits caps the bytes moved per Write and Read call. A
// capped call returns the short count with pkg.ErrTimeout, as a DMA
// timeout would.
func (c *Codec) SetTransferLimits(tx, rx int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.txLimit = tx
	c.rxLimit = rx
}

// Played returns a copy of the recorded TX slots.
func (c *Codec) Played() []int32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]int32(nil), c.played...)
}

// ClearPlayed discards the recorded TX slots.
func (c *Codec) ClearPlayed() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.played = c.played[:0]
}

// Config returns the configuration of the last Open.
func (c *Codec) Config() hal.I2SConfig {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.config
}

// Opens returns how many times the channels were opened.
func (c *Codec) Opens() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.opens
}

// Enabled reports whether both channels are running.
func (c *Codec) Enabled() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.enabled
}

// Preloaded returns the bytes preloaded since the last Open.
func (c *Codec) Preloaded() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.preloaded
}

// Compile-time interface check.
var _ hal.I2SPort = (*Codec)(nil)
