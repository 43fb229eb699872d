package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbheadset/device"
	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/device/hal/loopback"
	"github.com/ardnew/usbheadset/pkg"
	"github.com/ardnew/usbheadset/pkg/config"
	"github.com/ardnew/usbheadset/pkg/fixed"
)

type headsetFixture struct {
	headset *Headset
	usb     *loopback.HAL
	codec   *loopback.Codec
}

func startHeadset(t *testing.T, mutate func(cfg *config.Config)) *headsetFixture {
	t.Helper()
	cfg := config.Default()
	cfg.Mic.Producer = config.ProducerSynthetic
	if mutate != nil {
		mutate(cfg)
	}

	codec := loopback.NewCodec()
	h, err := New(cfg, codec)
	require.NoError(t, err)

	var descriptors device.DescriptorTable
	dev, err := h.ConfigureDevice(device.NewDeviceBuilder(&descriptors)).Build()
	require.NoError(t, err)
	require.NoError(t, h.Attach(dev))

	usb := loopback.New()
	stack := device.NewStack(dev, usb)
	h.SetStack(stack)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, stack.Start(ctx))
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = stack.Stop()
		_ = h.Close()
	})
	return &headsetFixture{headset: h, usb: usb, codec: codec}
}

func (f *headsetFixture) request(t *testing.T, setup device.SetupPacket, data []byte) (int, error) {
	t.Helper()
	return f.usb.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, data)
}

func (f *headsetFixture) enumerate(t *testing.T) {
	t.Helper()
	f.usb.BusReset()
	_, err := f.request(t, device.SetupPacket{Request: device.RequestSetAddress, Value: 5}, nil)
	require.NoError(t, err)

	var setCfg device.SetupPacket
	device.SetConfigurationSetup(&setCfg, device.ConfigurationValue)
	_, err = f.request(t, setCfg, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.headset.Lifecycle().Mode() == StatusMounted
	}, time.Second, time.Millisecond)
}

func (f *headsetFixture) setInterface(t *testing.T, iface, alt uint8) error {
	t.Helper()
	var setup device.SetupPacket
	device.SetInterfaceSetup(&setup, iface, alt)
	_, err := f.request(t, setup, nil)
	return err
}

func (f *headsetFixture) classGet(t *testing.T, request, selector, channel, entity uint8, length int) ([]byte, error) {
	t.Helper()
	var setup device.SetupPacket
	device.ClassInterfaceSetup(&setup, true, request, selector, channel, entity, InterfaceControl, uint16(length))
	buf := make([]byte, length)
	n, err := f.request(t, setup, buf)
	return buf[:n], err
}

func (f *headsetFixture) classSet(t *testing.T, request, selector, channel, entity uint8, data []byte) error {
	t.Helper()
	var setup device.SetupPacket
	device.ClassInterfaceSetup(&setup, false, request, selector, channel, entity, InterfaceControl, uint16(len(data)))
	_, err := f.request(t, setup, data)
	return err
}

// readFrame polls the mic endpoint for one millisecond of audio.
func (f *headsetFixture) readFrame(t *testing.T, size int) []int16 {
	t.Helper()
	buf := make([]byte, size)
	var frame []int16
	require.Eventually(t, func() bool {
		n, err := f.usb.ReadIn(EndpointMicIn, buf)
		if err != nil || n != size {
			return false
		}
		frame = decodeSamples(buf)
		return true
	}, time.Second, time.Millisecond)
	return frame
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.DefaultRate = 48000
	_, err := New(cfg, loopback.NewCodec())
	assert.ErrorIs(t, err, pkg.ErrUnsupportedRate)

	cfg = config.Default()
	cfg.Audio.ResolutionBits = 24
	_, err = New(cfg, loopback.NewCodec())
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}

func TestNewDefaults(t *testing.T) {
	codec := loopback.NewCodec()
	h, err := New(nil, codec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	assert.Equal(t, DefaultRate, h.State().Rate())
	assert.IsType(t, &I2SProducer{}, h.producer)
	assert.True(t, h.Transport().IsOpen())
	assert.Equal(t, 16, codec.Config().DMAFrameNum)
	assert.Equal(t, [2]int32{fixed.Gain(30), fixed.Gain(30)}, h.State().Gain(Mic))
	assert.Equal(t, StatusNotMounted, h.Lifecycle().Mode())

	assert.ErrorIs(t, h.Run(context.Background()), pkg.ErrNotConfigured)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.False(t, codec.Enabled())
}

func TestNewConfiguredRate(t *testing.T) {
	codec := loopback.NewCodec()
	cfg := config.Default()
	cfg.Audio.DefaultRate = 44100
	cfg.Mic.HostVolumeOffset.Enabled = false

	h, err := New(cfg, codec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	assert.Equal(t, uint32(44100), h.State().Rate())
	assert.Equal(t, 44, codec.Config().DMAFrameNum)
	assert.Equal(t, [2]int32{fixed.One8p24, fixed.One8p24}, h.State().Gain(Mic))
}

func TestAttachRejectsForeignDevice(t *testing.T) {
	h, err := New(nil, loopback.NewCodec())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	var descriptors device.DescriptorTable
	dev, err := device.NewDeviceBuilder(&descriptors).
		AddInterface(0x03, 0x00, 0x00).
		Build()
	require.NoError(t, err)
	assert.ErrorIs(t, h.Attach(dev), pkg.ErrInvalidRequest)
}

func TestHeadsetHandleSetupScope(t *testing.T) {
	h, err := New(nil, loopback.NewCodec())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	var setup device.SetupPacket
	device.ClassInterfaceSetup(&setup, true, RequestCur, ClockControlSamFreq, 0, EntityClock, InterfaceSpeaker, 4)
	_, ok, err := h.HandleSetup(&device.Interface{Number: InterfaceSpeaker}, &setup, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	device.ClassInterfaceSetup(&setup, true, RequestCur, ClockControlSamFreq, 0, EntityClock, InterfaceControl, 4)
	resp, ok, err := h.HandleSetup(&device.Interface{Number: InterfaceControl}, &setup, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, le32(16000), resp)
}

// failingPort refuses to open at one rate.
type failingPort struct {
	*loopback.Codec
	failRate uint32
}

func (p *failingPort) Open(cfg hal.I2SConfig) error {
	if cfg.SampleRate == p.failRate {
		return errors.New("pll cannot lock")
	}
	return p.Codec.Open(cfg)
}

func TestApplyRateRestoresTransport(t *testing.T) {
	port := &failingPort{Codec: loopback.NewCodec(), failRate: 44100}
	h, err := New(nil, port)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	_, err = h.State().SetRate(44100, h.applyRate)
	require.Error(t, err)
	assert.Equal(t, DefaultRate, h.State().Rate())
	assert.Equal(t, DefaultRate, h.Transport().Rate())
	assert.True(t, h.Transport().IsOpen())

	changed, err := h.State().SetRate(24000, h.applyRate)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 24, port.Config().DMAFrameNum)
}

func TestHeadsetSpeakerStream(t *testing.T) {
	f := startHeadset(t, nil)
	f.enumerate(t)

	require.NoError(t, f.setInterface(t, InterfaceSpeaker, 1))
	assert.True(t, f.headset.State().Active(Speaker))
	assert.Equal(t, StatusStreaming, f.headset.Lifecycle().Mode())

	samples := make([]int16, 32)
	for i := range samples {
		samples[i] = int16(i * 512)
	}
	_, err := f.usb.WriteOut(EndpointSpeakerOut, encodeSamples(samples))
	require.NoError(t, err)

	want := make([]int32, len(samples))
	for i, s := range samples {
		want[i] = int32(s) << 16
	}
	require.Eventually(t, func() bool {
		return len(f.codec.Played()) >= len(want)
	}, time.Second, time.Millisecond)
	assert.Equal(t, want, f.codec.Played()[:len(want)])

	require.NoError(t, f.setInterface(t, InterfaceSpeaker, 0))
	assert.False(t, f.headset.State().Active(Speaker))
	assert.Equal(t, StatusMounted, f.headset.Lifecycle().Mode())

	assert.ErrorIs(t, f.setInterface(t, InterfaceSpeaker, 2), pkg.ErrStall)
}

func TestHeadsetMicStream(t *testing.T) {
	f := startHeadset(t, nil)
	f.enumerate(t)
	require.NoError(t, f.setInterface(t, InterfaceMic, 1))

	// The synthetic tone carries the +20 dB host volume offset.
	for _, s := range f.readFrame(t, 64) {
		assert.Equal(t, int16(10*DefaultAmplitude), abs16(s))
	}

	require.NoError(t, f.classSet(t, RequestCur, FeatureControlMute, ChannelMaster, EntityMicFeatureUnit, []byte{1}))

	// Frames staged before the mute may still be queued.
	deadline := time.Now().Add(time.Second)
	for !silent(f.readFrame(t, 64)) {
		require.True(t, time.Now().Before(deadline), "mic frames not muted")
	}
}

func silent(frame []int16) bool {
	for _, s := range frame {
		if s != 0 {
			return false
		}
	}
	return true
}

func abs16(s int16) int16 {
	if s < 0 {
		return -s
	}
	return s
}

func TestHeadsetClockControl(t *testing.T) {
	f := startHeadset(t, nil)
	f.enumerate(t)

	resp, err := f.classGet(t, RequestCur, ClockControlSamFreq, 0, EntityClock, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(resp))

	// Hosts read the subrange count first, then the whole block.
	resp, err = f.classGet(t, RequestRange, ClockControlSamFreq, 0, EntityClock, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 0}, resp)
	resp, err = f.classGet(t, RequestRange, ClockControlSamFreq, 0, EntityClock, 50)
	require.NoError(t, err)
	assert.Len(t, resp, 50)

	require.NoError(t, f.classSet(t, RequestCur, ClockControlSamFreq, 0, EntityClock, le32(32000)))
	assert.Equal(t, uint32(32000), f.headset.State().Rate())
	assert.Equal(t, uint32(32000), f.headset.Transport().Rate())
	assert.Equal(t, 32, f.codec.Config().DMAFrameNum)

	err = f.classSet(t, RequestCur, ClockControlSamFreq, 0, EntityClock, le32(48000))
	assert.ErrorIs(t, err, pkg.ErrStall)
	assert.Equal(t, uint32(32000), f.headset.State().Rate())

	_, err = f.classGet(t, RequestCur, FeatureControlMute, 0, 0x99, 1)
	assert.ErrorIs(t, err, pkg.ErrStall)
}

func TestHeadsetBusEvents(t *testing.T) {
	f := startHeadset(t, nil)
	var modes []StatusMode
	sink := make(chan StatusMode, 16)
	f.headset.SetStatusSink(StatusSinkFunc(func(mode StatusMode) { sink <- mode }))

	f.enumerate(t)
	require.NoError(t, f.setInterface(t, InterfaceMic, 1))

	waitMode := func(want StatusMode) {
		t.Helper()
		require.Eventually(t, func() bool {
			return f.headset.Lifecycle().Mode() == want
		}, time.Second, time.Millisecond)
	}

	f.usb.Suspend()
	waitMode(StatusSuspended)
	assert.False(t, f.headset.State().Active(Mic))

	f.usb.Resume()
	waitMode(StatusMounted)

	f.usb.BusReset()
	waitMode(StatusNotMounted)

	for len(sink) > 0 {
		modes = append(modes, <-sink)
	}
	assert.Equal(t, StatusNotMounted, modes[0])
	assert.Contains(t, modes, StatusStreaming)
	assert.Equal(t, StatusNotMounted, modes[len(modes)-1])
}
