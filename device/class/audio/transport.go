package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/pkg"
	"github.com/ardnew/usbheadset/pkg/fixed"
)

// Transport defaults.
const (
	DefaultTransportTimeout = 200 * time.Millisecond
	DefaultDMADescNum       = 2
	DefaultNarrowShift      = 14
)

// TransportConfig configures a Transport.
type TransportConfig struct {
	Timeout     time.Duration // Bound on one blocking read or write
	DMADescNum  int           // DMA descriptors per channel
	NarrowShift uint          // Right shift from a raw slot to 16 bits
}

// Transport owns the I2S channel pair. Each DMA descriptor holds one
// millisecond of stereo 32-bit frames.
//
// Reads, writes and reconfiguration are serialized by the transport, so a
// rate change never overlaps a transfer in flight.
type Transport struct {
	port hal.I2SPort
	cfg  TransportConfig

	mutex  sync.Mutex
	rate   uint32
	open   bool
	config hal.I2SConfig

	rxBuf []byte
	txBuf []byte
}

// NewTransport creates a closed transport on port.
func NewTransport(port hal.I2SPort, cfg TransportConfig) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTransportTimeout
	}
	if cfg.DMADescNum <= 0 {
		cfg.DMADescNum = DefaultDMADescNum
	}
	return &Transport{port: port, cfg: cfg}
}

// Init opens both channels at rate, preloads silence on TX and enables
// them.
func (t *Transport) Init(rate uint32) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.init(rate)
}

func (t *Transport) init(rate uint32) error {
	if t.open {
		return pkg.ErrAlreadyRunning
	}
	cfg := hal.I2SConfig{
		SampleRate:  rate,
		SlotBits:    hal.I2SSlotBits,
		Slots:       hal.I2SSlots,
		Format:      hal.I2SFormatPhilips,
		DMADescNum:  t.cfg.DMADescNum,
		DMAFrameNum: int(rate / 1000),
	}
	if err := t.port.Open(cfg); err != nil {
		return fmt.Errorf("i2s open at %d Hz: %w", rate, err)
	}

	bufBytes := cfg.DMABufferBytes()
	if cap(t.rxBuf) < bufBytes {
		t.rxBuf = make([]byte, bufBytes)
	}
	t.rxBuf = t.rxBuf[:bufBytes]

	// Preload the whole TX ring so enabling does not clock out noise.
	silence := make([]byte, bufBytes*cfg.DMADescNum)
	if _, err := t.port.Preload(silence); err != nil {
		_ = t.port.Delete()
		return fmt.Errorf("i2s preload: %w", err)
	}
	if err := t.port.Enable(); err != nil {
		_ = t.port.Delete()
		return fmt.Errorf("i2s enable: %w", err)
	}

	t.rate = rate
	t.config = cfg
	t.open = true
	pkg.LogInfo(pkg.ComponentI2S, "i2s channels enabled",
		"rate", rate,
		"dmaDesc", cfg.DMADescNum,
		"dmaFrames", cfg.DMAFrameNum,
		"bufferBytes", bufBytes)
	return nil
}

// Reconfigure tears down both channels and reopens them at rate.
func (t *Transport) Reconfigure(rate uint32) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if err := t.close(); err != nil {
		return err
	}
	return t.init(rate)
}

// Close disables and releases both channels.
func (t *Transport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.close()
}

func (t *Transport) close() error {
	if !t.open {
		return nil
	}
	t.open = false
	err := errors.Join(t.port.Disable(), t.port.Delete())
	if err != nil {
		return fmt.Errorf("i2s teardown: %w", err)
	}
	pkg.LogDebug(pkg.ComponentI2S, "i2s channels deleted", "rate", t.rate)
	return nil
}

// Rate returns the rate the channels run at.
func (t *Transport) Rate() uint32 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.rate
}

// IsOpen reports whether the channels are enabled.
func (t *Transport) IsOpen() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.open
}

// Config returns the channel configuration in use.
func (t *Transport) Config() hal.I2SConfig {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.config
}

// ReadRaw fills dst with interleaved 32-bit slots, one DMA buffer at a
// time, and returns the number of slots read. The count is always a
// whole number of frames. A timeout or a misaligned tail ends the read
// early with a short count and no error.
func (t *Transport) ReadRaw(dst []int32) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.open {
		return 0, pkg.ErrTransportClosed
	}

	want := len(dst) &^ (hal.I2SSlots - 1)
	n := 0
	for n < want {
		chunk := (want - n) * 4
		if chunk > len(t.rxBuf) {
			chunk = len(t.rxBuf)
		}
		got, err := t.port.Read(t.rxBuf[:chunk], t.cfg.Timeout)

		whole := got - got%hal.I2SFrameBytes
		if whole != got {
			pkg.LogWarn(pkg.ComponentI2S, "discarding partial i2s frame",
				"bytes", got-whole,
				"frameBytes", hal.I2SFrameBytes)
		}
		for i := 0; i < whole; i += 4 {
			dst[n] = int32(binary.LittleEndian.Uint32(t.rxBuf[i:]))
			n++
		}

		if err != nil {
			if errors.Is(err, pkg.ErrTimeout) {
				pkg.LogWarn(pkg.ComponentI2S, "i2s read timed out",
					"slots", n,
					"requested", want)
				break
			}
			return n, fmt.Errorf("i2s read: %w", err)
		}
		if whole == 0 {
			break
		}
	}
	if n < want {
		pkg.LogDebug(pkg.ComponentI2S, "short i2s read", "slots", n, "requested", want)
	}
	return n, nil
}

// Read fills dst with interleaved 16-bit samples narrowed from the raw
// slots and returns the number of samples read.
func (t *Transport) Read(dst []int16) (int, error) {
	raw := make([]int32, len(dst))
	n, err := t.ReadRaw(raw)
	for i := 0; i < n; i++ {
		dst[i] = fixed.Narrow(raw[i], t.cfg.NarrowShift)
	}
	return n, err
}

// Write widens interleaved 16-bit samples to MSB-aligned 32-bit slots and
// sends them, bounded by the timeout. A mono source is copied to both
// slots. It returns the number of source samples written; a short write
// is logged and not treated as an error.
func (t *Transport) Write(src []int16, channels int) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.open {
		return 0, pkg.ErrTransportClosed
	}
	if len(src) == 0 {
		return 0, nil
	}

	slotsPerSample := 1
	if channels == 1 {
		slotsPerSample = hal.I2SSlots
	}
	size := len(src) * slotsPerSample * 4
	if cap(t.txBuf) < size {
		t.txBuf = make([]byte, size)
	}
	buf := t.txBuf[:size]

	off := 0
	for _, s := range src {
		v := uint32(int32(s) << 16)
		for k := 0; k < slotsPerSample; k++ {
			binary.LittleEndian.PutUint32(buf[off:], v)
			off += 4
		}
	}

	sent, err := t.port.Write(buf, t.cfg.Timeout)
	if err != nil && !errors.Is(err, pkg.ErrTimeout) {
		return sent / (slotsPerSample * 4), fmt.Errorf("i2s write: %w", err)
	}
	if sent < size {
		pkg.LogWarn(pkg.ComponentI2S, "short i2s write",
			"bytes", sent,
			"requested", size)
	}
	return sent / (slotsPerSample * 4), nil
}
