package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/usbheadset/device"
	"github.com/ardnew/usbheadset/pkg"
)

// maxControlResponse fits the largest parameter block (the clock RANGE).
const maxControlResponse = 2 + len(SupportedRates)*Range4SubrangeSize

// RateApplier brings the hardware to a new sample rate. It runs while the
// device state is locked for writing.
type RateApplier func(rate uint32) error

// ControlHandler executes UAC2 entity requests against the device state.
//
// Requests it does not implement, and requests with a malformed payload,
// are reported as not handled and the stack stalls them. The handler is
// called from the control loop only.
type ControlHandler struct {
	state       *DeviceState
	applyRate   RateApplier
	responseBuf [maxControlResponse]byte
}

// NewControlHandler creates a handler. applyRate may be nil.
func NewControlHandler(state *DeviceState, applyRate RateApplier) *ControlHandler {
	return &ControlHandler{
		state:     state,
		applyRate: applyRate,
	}
}

func featureDirection(entity uint8) (Direction, bool) {
	switch entity {
	case EntitySpeakerFeatureUnit:
		return Speaker, true
	case EntityMicFeatureUnit:
		return Mic, true
	default:
		return 0, false
	}
}

func isTerminal(entity uint8) bool {
	switch entity {
	case EntitySpeakerInputTerminal, EntitySpeakerOutputTerminal,
		EntityMicInputTerminal, EntityMicOutputTerminal:
		return true
	default:
		return false
	}
}

// Handle dispatches a class request by direction. It satisfies the
// contract of device.ClassDriver.HandleSetup.
func (c *ControlHandler) Handle(setup *device.SetupPacket, data []byte) ([]byte, bool) {
	if setup.IsDeviceToHost() {
		return c.HandleGet(setup)
	}
	return nil, c.HandleSet(setup, data)
}

// HandleGet answers a GET request. The returned slice is valid until the
// next call.
func (c *ControlHandler) HandleGet(setup *device.SetupPacket) ([]byte, bool) {
	resp, err := c.get(setup)
	if err != nil {
		pkg.LogDebug(pkg.ComponentControl, "GET not handled",
			"request", setup.String(),
			"error", err)
		return nil, false
	}
	return resp, true
}

// HandleSet executes a SET request with its data stage payload.
func (c *ControlHandler) HandleSet(setup *device.SetupPacket, data []byte) bool {
	if err := c.set(setup, data); err != nil {
		pkg.LogInfo(pkg.ComponentControl, "SET rejected",
			"request", setup.String(),
			"error", err)
		return false
	}
	return true
}

func unknownControl(entity, selector, request uint8) error {
	return fmt.Errorf("entity 0x%02X selector 0x%02X request 0x%02X: %w",
		entity, selector, request, pkg.ErrUnknownControl)
}

func (c *ControlHandler) get(setup *device.SetupPacket) ([]byte, error) {
	entity := setup.EntityID()
	selector := setup.ControlSelector()
	ch := setup.ChannelNumber()
	buf := c.responseBuf[:]

	switch {
	case entity == EntityClock:
		switch {
		case selector == ClockControlSamFreq && setup.Request == RequestCur:
			binary.LittleEndian.PutUint32(buf, c.state.Rate())
			return buf[:Cur4Size], nil
		case selector == ClockControlSamFreq && setup.Request == RequestRange:
			return encodeRateRange(buf), nil
		case selector == ClockControlClkValid && setup.Request == RequestCur:
			buf[0] = 1
			return buf[:Cur1Size], nil
		}
		return nil, unknownControl(entity, selector, setup.Request)

	case isTerminal(entity):
		if selector == TerminalControlConnector && setup.Request == RequestCur {
			return encodeConnector(buf), nil
		}
		return nil, unknownControl(entity, selector, setup.Request)
	}

	d, ok := featureDirection(entity)
	if !ok {
		return nil, fmt.Errorf("entity 0x%02X: %w", entity, pkg.ErrUnknownEntity)
	}

	switch {
	case selector == FeatureControlMute && setup.Request == RequestCur:
		mute, err := c.state.Mute(d, ch)
		if err != nil {
			return nil, err
		}
		buf[0] = 0
		if mute {
			buf[0] = 1
		}
		return buf[:Cur1Size], nil

	case selector == FeatureControlVolume && setup.Request == RequestCur:
		vol, err := c.state.Volume(d, ch)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint16(buf, uint16(vol))
		return buf[:Cur2Size], nil

	case selector == FeatureControlVolume && setup.Request == RequestRange:
		if err := checkChannel(ch); err != nil {
			return nil, err
		}
		return encodeVolumeRange(buf, volumeRange(d)), nil
	}
	return nil, unknownControl(entity, selector, setup.Request)
}

func volumeRange(d Direction) VolumeRange {
	if d == Mic {
		return MicVolumeRange
	}
	return SpeakerVolumeRange
}

func checkLength(data []byte, want int) error {
	if len(data) != want {
		return fmt.Errorf("payload %d bytes, want %d: %w", len(data), want, pkg.ErrPayloadLength)
	}
	return nil
}

func (c *ControlHandler) set(setup *device.SetupPacket, data []byte) error {
	entity := setup.EntityID()
	selector := setup.ControlSelector()
	ch := setup.ChannelNumber()

	if setup.Request != RequestCur {
		return unknownControl(entity, selector, setup.Request)
	}

	if entity == EntityClock {
		if selector != ClockControlSamFreq {
			return unknownControl(entity, selector, setup.Request)
		}
		if err := checkLength(data, Cur4Size); err != nil {
			return err
		}
		return c.setRate(binary.LittleEndian.Uint32(data))
	}

	d, ok := featureDirection(entity)
	if !ok {
		if isTerminal(entity) {
			return unknownControl(entity, selector, setup.Request)
		}
		return fmt.Errorf("entity 0x%02X: %w", entity, pkg.ErrUnknownEntity)
	}

	switch selector {
	case FeatureControlMute:
		if err := checkLength(data, Cur1Size); err != nil {
			return err
		}
		if err := c.state.SetMute(d, ch, data[0] != 0); err != nil {
			return err
		}
		pkg.LogInfo(pkg.ComponentControl, "mute set",
			"stream", d.String(),
			"channel", ch,
			"mute", data[0] != 0,
			"gain", c.state.Gain(d))
		return nil

	case FeatureControlVolume:
		if err := checkLength(data, Cur2Size); err != nil {
			return err
		}
		vol := int16(binary.LittleEndian.Uint16(data))
		if err := c.state.SetVolume(d, ch, vol); err != nil {
			return err
		}
		pkg.LogInfo(pkg.ComponentControl, "volume set",
			"stream", d.String(),
			"channel", ch,
			"dB", int(vol)/256,
			"gain", c.state.Gain(d))
		return nil
	}
	return unknownControl(entity, selector, setup.Request)
}

func (c *ControlHandler) setRate(rate uint32) error {
	changed, err := c.state.SetRate(rate, c.applyRate)
	if err != nil {
		return err
	}
	if changed {
		snap := c.state.Snapshot()
		pkg.LogInfo(pkg.ComponentControl, "sample rate changed",
			"rate", rate,
			"speakerBytesPerMs", snap.Speaker.BytesPerMs,
			"micBytesPerMs", snap.Mic.BytesPerMs)
	}
	return nil
}

// encodeRateRange writes the 4-byte RANGE block listing every supported
// rate as a point subrange.
func encodeRateRange(buf []byte) []byte {
	binary.LittleEndian.PutUint16(buf, uint16(len(SupportedRates)))
	off := 2
	for _, r := range SupportedRates {
		binary.LittleEndian.PutUint32(buf[off:], r)   // MIN
		binary.LittleEndian.PutUint32(buf[off+4:], r) // MAX
		binary.LittleEndian.PutUint32(buf[off+8:], 0) // RES
		off += Range4SubrangeSize
	}
	return buf[:off]
}

// encodeVolumeRange writes a 2-byte RANGE block with one subrange.
func encodeVolumeRange(buf []byte, r VolumeRange) []byte {
	binary.LittleEndian.PutUint16(buf, 1)
	binary.LittleEndian.PutUint16(buf[2:], uint16(r.Min))
	binary.LittleEndian.PutUint16(buf[4:], uint16(r.Max))
	binary.LittleEndian.PutUint16(buf[6:], uint16(r.Res))
	return buf[:2+Range2SubrangeSize]
}

// encodeConnector writes a single-channel cluster: bNrChannels,
// bmChannelConfig, iChannelNames.
func encodeConnector(buf []byte) []byte {
	buf[0] = 1
	binary.LittleEndian.PutUint32(buf[1:], 0)
	buf[5] = 0
	return buf[:ConnectorSize]
}
