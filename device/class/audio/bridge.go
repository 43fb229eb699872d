package audio

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ardnew/usbheadset/pkg"
)

// Bridge back-off defaults.
const (
	DefaultEmptyBackoff = 10 * time.Millisecond
	DefaultShortBackoff = time.Millisecond
	DefaultIdleSleep    = 50 * time.Millisecond
)

// EndpointReader is the OUT endpoint side of the device stack.
type EndpointReader interface {
	Available(address uint8) int
	Read(ctx context.Context, address uint8, buf []byte) (int, error)
}

// BridgeConfig configures the speaker pump pacing.
type BridgeConfig struct {
	EmptyBackoff time.Duration // No or misaligned data at the OUT endpoint
	ShortBackoff time.Duration // Endpoint read returned nothing
	IdleSleep    time.Duration // Speaker stream closed
}

// Bridge moves audio between the USB endpoints and the transport.
//
// The speaker side runs from a pump goroutine through SpeakerTick. The
// mic side is driven by the isochronous IN service through PreLoad and
// PostLoad, which stage one frame ahead.
type Bridge struct {
	state     *DeviceState
	transport *Transport
	producer  Producer
	stats     *Stats
	cfg       BridgeConfig

	endpointMutex sync.RWMutex
	endpoints     EndpointReader

	// Speaker buffers, owned by the pump.
	speakerMutex   sync.Mutex
	speakerBuf     []byte
	speakerSamples []int16
	speakerCount   int

	// Mic staging, owned by the IN service.
	micMutex   sync.Mutex
	micStage   []byte
	micSamples []int16
	micCount   int
}

// NewBridge creates a bridge. The endpoint reader is attached later with
// SetEndpoints.
func NewBridge(state *DeviceState, transport *Transport, producer Producer, stats *Stats, cfg BridgeConfig) *Bridge {
	if cfg.EmptyBackoff <= 0 {
		cfg.EmptyBackoff = DefaultEmptyBackoff
	}
	if cfg.ShortBackoff <= 0 {
		cfg.ShortBackoff = DefaultShortBackoff
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = DefaultIdleSleep
	}
	return &Bridge{
		state:     state,
		transport: transport,
		producer:  producer,
		stats:     stats,
		cfg:       cfg,
	}
}

// SetEndpoints attaches the OUT endpoint reader.
func (b *Bridge) SetEndpoints(r EndpointReader) {
	b.endpointMutex.Lock()
	defer b.endpointMutex.Unlock()
	b.endpoints = r
}

func (b *Bridge) reader() EndpointReader {
	b.endpointMutex.RLock()
	defer b.endpointMutex.RUnlock()
	return b.endpoints
}

// SpeakerTick moves whatever the host has delivered on the speaker OUT
// endpoint to the transport and returns how long the pump should wait
// before the next tick.
func (b *Bridge) SpeakerTick(ctx context.Context) time.Duration {
	snap := b.state.Snapshot()
	if !snap.Speaker.Active {
		return b.cfg.IdleSleep
	}

	r := b.reader()
	if r == nil {
		return b.cfg.EmptyBackoff
	}

	frame := snap.Speaker.Format.FrameBytes()
	available := r.Available(EndpointSpeakerOut)
	if available == 0 {
		return b.cfg.EmptyBackoff
	}
	if frame == 0 || available%frame != 0 {
		pkg.LogDebug(pkg.ComponentBridge, "speaker data not frame aligned",
			"available", available,
			"frameBytes", frame)
		return b.cfg.EmptyBackoff
	}

	b.speakerMutex.Lock()
	defer b.speakerMutex.Unlock()

	if cap(b.speakerBuf) < available {
		b.speakerBuf = make([]byte, available)
		b.speakerSamples = make([]int16, available/SampleBytes)
	}
	n, err := r.Read(ctx, EndpointSpeakerOut, b.speakerBuf[:available])
	if err != nil {
		if ctx.Err() == nil {
			pkg.LogWarn(pkg.ComponentBridge, "speaker endpoint read failed", "error", err)
		}
		return b.cfg.EmptyBackoff
	}
	n -= n % frame
	b.speakerCount = n
	b.stats.Record(HistSpeakerAvailable, n)

	if n < snap.Speaker.BytesPerMs {
		pkg.LogWarn(pkg.ComponentBridge, "speaker underrun",
			"bytes", n,
			"expected", snap.Speaker.BytesPerMs)
	}
	if n == 0 {
		return b.cfg.ShortBackoff
	}

	samples := b.speakerSamples[:n/SampleBytes]
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b.speakerBuf[i*SampleBytes:]))
	}
	ApplyGain(samples, int(snap.Speaker.Format.Channels), snap.Speaker.Gain)

	if _, err := b.transport.Write(samples, int(snap.Speaker.Format.Channels)); err != nil {
		pkg.LogWarn(pkg.ComponentBridge, "speaker write failed", "error", err)
		return b.cfg.ShortBackoff
	}
	return 0
}

// PreLoad returns the mic bytes staged by the previous PostLoad, or nil
// when nothing is staged.
func (b *Bridge) PreLoad() []byte {
	b.micMutex.Lock()
	defer b.micMutex.Unlock()

	if b.micCount > 0 {
		return b.micStage[:b.micCount]
	}
	if b.state.Active(Mic) {
		pkg.LogDebug(pkg.ComponentBridge, "no staged mic data")
	}
	return nil
}

// PostLoad records the bytes sent in the last IN frame and stages the
// next frame from the producer. Only produced bytes are staged.
func (b *Bridge) PostLoad(sent int) {
	snap := b.state.Snapshot()

	b.micMutex.Lock()
	defer b.micMutex.Unlock()

	if !snap.Mic.Active {
		b.micCount = 0
		return
	}
	if sent > 0 {
		b.stats.Record(HistMicSent, sent)
	}

	want := snap.Mic.BytesPerMs
	if cap(b.micStage) < want {
		b.micStage = make([]byte, want)
		b.micSamples = make([]int16, want/SampleBytes)
	}
	samples := b.micSamples[:want/SampleBytes]

	n, err := b.producer.Produce(samples, &snap)
	if err != nil {
		pkg.LogWarn(pkg.ComponentBridge, "mic producer failed", "error", err)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(b.micStage[i*SampleBytes:], uint16(samples[i]))
	}
	b.micCount = n * SampleBytes
	b.stats.Record(HistMicProduced, b.micCount)

	if b.micCount != want {
		pkg.LogInfo(pkg.ComponentBridge, "short mic production",
			"bytes", b.micCount,
			"requested", want)
	}
}

// ResetCounters zeroes the staged byte count of direction d.
func (b *Bridge) ResetCounters(d Direction) {
	switch d {
	case Speaker:
		b.speakerMutex.Lock()
		b.speakerCount = 0
		b.speakerMutex.Unlock()
	case Mic:
		b.micMutex.Lock()
		b.micCount = 0
		b.micMutex.Unlock()
	}
}

// Staged returns the staged byte count of direction d.
func (b *Bridge) Staged(d Direction) int {
	if d == Mic {
		b.micMutex.Lock()
		defer b.micMutex.Unlock()
		return b.micCount
	}
	b.speakerMutex.Lock()
	defer b.speakerMutex.Unlock()
	return b.speakerCount
}

// RunSpeaker ticks the speaker path until ctx is cancelled.
func (b *Bridge) RunSpeaker(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		wait := b.SpeakerTick(ctx)
		timer.Reset(wait)
	}
}
