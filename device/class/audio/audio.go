package audio

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/usbheadset/device"
	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/pkg"
	"github.com/ardnew/usbheadset/pkg/config"
	"github.com/ardnew/usbheadset/pkg/fixed"
)

// Headset is the UAC2 class driver for the audio control interface and
// the speaker and mic streaming interfaces.
type Headset struct {
	state     *DeviceState
	transport *Transport
	filter    *OffsetFilter
	producer  Producer
	stats     *Stats
	bridge    *Bridge
	control   *ControlHandler
	lifecycle *Lifecycle

	mutex      sync.RWMutex
	stack      *device.Stack
	interfaces [3]*device.Interface
	closeOnce  sync.Once
}

// New creates a headset on the I2S port and opens the transport at the
// configured default rate. A nil cfg uses config.Default.
func New(cfg *config.Config, port hal.I2SPort) (*Headset, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var micOffset int16
	if cfg.Mic.HostVolumeOffset.Enabled {
		micOffset = fixed.DB(cfg.Mic.HostVolumeOffset.DB)
		pkg.LogInfo(pkg.ComponentAudio, "mic host volume offset enabled",
			"dB", cfg.Mic.HostVolumeOffset.DB)
	}

	bits := uint8(cfg.Audio.ResolutionBits)
	state, err := NewDeviceState(
		[]Format{{ResolutionBits: bits, Channels: uint8(cfg.Audio.SpeakerChannels)}},
		[]Format{{ResolutionBits: bits, Channels: uint8(cfg.Audio.MicChannels)}},
		micOffset)
	if err != nil {
		return nil, err
	}
	if _, err := state.SetRate(cfg.Audio.DefaultRate, nil); err != nil {
		return nil, err
	}

	transport := NewTransport(port, TransportConfig{
		Timeout:     cfg.I2S.Timeout,
		DMADescNum:  cfg.I2S.DMADescNum,
		NarrowShift: cfg.I2S.NarrowShift,
	})
	filter := NewOffsetFilter(
		cfg.Mic.OffsetFilter.ResolutionBits,
		cfg.Mic.OffsetFilter.Shift,
		cfg.Mic.OffsetFilter.Bypass)

	h := &Headset{
		state:     state,
		transport: transport,
		filter:    filter,
		stats:     NewStats(),
	}

	switch cfg.Mic.Producer {
	case config.ProducerSynthetic:
		h.producer = NewSyntheticProducer(cfg.Mic.Synthetic.ToneHz, int16(cfg.Mic.Synthetic.Amplitude))
	default:
		h.producer = NewI2SProducer(h.transport, h.filter, cfg.I2S.NarrowShift)
	}

	h.bridge = NewBridge(state, h.transport, h.producer, h.stats, BridgeConfig{
		EmptyBackoff: cfg.Bridge.EmptyBackoff,
		ShortBackoff: cfg.Bridge.ShortBackoff,
		IdleSleep:    cfg.Bridge.IdleSleep,
	})
	h.control = NewControlHandler(state, h.applyRate)
	h.lifecycle = NewLifecycle(state, h.bridge, h.filter, h.stats)

	h.filter.Reset(true)
	if err := h.transport.Init(state.Rate()); err != nil {
		return nil, err
	}

	pkg.LogInfo(pkg.ComponentAudio, "headset created",
		"rate", state.Rate(),
		"producer", cfg.Mic.Producer,
		"offsetBypass", cfg.Mic.OffsetFilter.Bypass)
	return h, nil
}

// applyRate reconfigures the transport and resets the offset filter. On
// failure it reopens the transport at the previous rate.
func (h *Headset) applyRate(rate uint32) error {
	prev := h.transport.Rate()
	if err := h.transport.Reconfigure(rate); err != nil {
		if rerr := h.transport.Init(prev); rerr != nil {
			pkg.LogError(pkg.ComponentAudio, "i2s restore failed",
				"rate", prev,
				"error", rerr)
		}
		return err
	}
	h.filter.Reset(true)
	return nil
}

// State returns the device state.
func (h *Headset) State() *DeviceState { return h.state }

// Transport returns the I2S transport.
func (h *Headset) Transport() *Transport { return h.transport }

// Filter returns the mic offset filter.
func (h *Headset) Filter() *OffsetFilter { return h.filter }

// Stats returns the transfer statistics.
func (h *Headset) Stats() *Stats { return h.stats }

// Bridge returns the endpoint bridge.
func (h *Headset) Bridge() *Bridge { return h.bridge }

// Lifecycle returns the stream lifecycle.
func (h *Headset) Lifecycle() *Lifecycle { return h.lifecycle }

// SetStatusSink installs the indicator sink.
func (h *Headset) SetStatusSink(sink StatusSink) {
	h.lifecycle.SetStatusSink(sink)
}

// ConfigureDevice adds the audio control and both streaming interfaces to
// an empty builder so they get interface numbers 0, 1 and 2.
func (h *Headset) ConfigureDevice(builder *device.DeviceBuilder) *device.DeviceBuilder {
	builder.AddInterface(ClassAudio, SubclassAudioControl, ProtocolIPVersion2)

	builder.AddInterface(ClassAudio, SubclassAudioStreaming, ProtocolIPVersion2)
	builder.AddEndpoint(EndpointSpeakerOut,
		device.EndpointTypeIsochronous|device.IsoSyncAdaptive, EndpointMaxPacketSize)

	builder.AddInterface(ClassAudio, SubclassAudioStreaming, ProtocolIPVersion2)
	builder.AddEndpoint(EndpointMicIn,
		device.EndpointTypeIsochronous|device.IsoSyncAsync, EndpointMaxPacketSize)

	return builder
}

// Attach binds the headset to the three interfaces created by
// ConfigureDevice.
func (h *Headset) Attach(dev *device.Device) error {
	subclasses := [3]uint8{SubclassAudioControl, SubclassAudioStreaming, SubclassAudioStreaming}
	for n, sub := range subclasses {
		iface := dev.GetInterface(uint8(n))
		if iface == nil || iface.Class != ClassAudio || iface.SubClass != sub {
			return fmt.Errorf("audio interface %d: %w", n, pkg.ErrInvalidRequest)
		}
		if err := iface.SetClassDriver(h); err != nil {
			return err
		}
	}
	return nil
}

// SetStack connects the headset to the device stack: the bridge reads the
// speaker endpoint through it and bus events reach the lifecycle.
func (h *Headset) SetStack(stack *device.Stack) {
	h.mutex.Lock()
	h.stack = stack
	h.mutex.Unlock()

	h.bridge.SetEndpoints(stack)
	stack.SetOnBusEvent(h.HandleBusEvent)
}

// Init implements device.ClassDriver.
func (h *Headset) Init(iface *device.Interface) error {
	if int(iface.Number) >= len(h.interfaces) {
		return fmt.Errorf("audio interface %d: %w", iface.Number, pkg.ErrInvalidRequest)
	}
	h.mutex.Lock()
	h.interfaces[iface.Number] = iface
	h.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentAudio, "interface attached",
		"interface", iface.Number,
		"subclass", iface.SubClass)
	return nil
}

// HandleSetup implements device.ClassDriver. Entity requests arrive on the
// audio control interface.
func (h *Headset) HandleSetup(iface *device.Interface, setup *device.SetupPacket, data []byte) ([]byte, bool, error) {
	if !setup.IsClass() || iface.Number != InterfaceControl {
		return nil, false, nil
	}
	resp, ok := h.control.Handle(setup, data)
	return resp, ok, nil
}

// SetAlternate implements device.ClassDriver.
func (h *Headset) SetAlternate(iface *device.Interface, alt uint8) error {
	if alt == 0 {
		h.lifecycle.CloseEndpoint(iface.Number, alt)
	}
	return h.lifecycle.SetInterface(iface.Number, alt)
}

// Close implements device.ClassDriver. The transport is released once no
// matter how many interfaces close.
func (h *Headset) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.lifecycle.Unmount()
		err = h.transport.Close()
	})
	return err
}

// HandleBusEvent forwards a device bus event to the lifecycle.
func (h *Headset) HandleBusEvent(ev device.BusEvent) {
	switch ev {
	case device.BusEventMount:
		h.lifecycle.Mount()
	case device.BusEventUnmount:
		h.lifecycle.Unmount()
	case device.BusEventSuspend:
		h.lifecycle.Suspend()
	case device.BusEventResume:
		h.lifecycle.Resume()
	}
}

// Run pumps the speaker path and serves the mic endpoint until ctx is
// cancelled. SetStack must be called first.
func (h *Headset) Run(ctx context.Context) error {
	h.mutex.RLock()
	stack := h.stack
	h.mutex.RUnlock()
	if stack == nil {
		return pkg.ErrNotConfigured
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.bridge.RunSpeaker(ctx)
	})
	g.Go(func() error {
		return stack.ServeIsochronousIn(ctx, EndpointMicIn, h.bridge)
	})
	return g.Wait()
}

// Compile-time interface checks.
var (
	_ device.ClassDriver  = (*Headset)(nil)
	_ device.IsoInHandler = (*Bridge)(nil)
)
