package host

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ardnew/usbheadset/device"
	"github.com/ardnew/usbheadset/device/class/audio"
	"github.com/ardnew/usbheadset/pkg"
)

// ControlDevice performs control transfers on the default pipe.
type ControlDevice interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// RateRange is one subrange of the clock source's sample rate RANGE.
type RateRange struct {
	Min, Max, Res uint32
}

// maxRangeBlock bounds the RANGE response the client is prepared to read.
const maxRangeBlock = 2 + 32*audio.Range4SubrangeSize

// Client issues UAC2 control requests to one audio control interface.
//
// Requests are serialized; a Client is safe for concurrent use.
type Client struct {
	dev   ControlDevice
	iface uint8
	mutex sync.Mutex
	buf   [maxRangeBlock]byte
}

// NewClient returns a client for the audio control interface of dev.
func NewClient(dev ControlDevice) *Client {
	return &Client{dev: dev, iface: audio.InterfaceControl}
}

func featureUnit(d audio.Direction) (uint8, error) {
	switch d {
	case audio.Speaker:
		return audio.EntitySpeakerFeatureUnit, nil
	case audio.Mic:
		return audio.EntityMicFeatureUnit, nil
	default:
		return 0, fmt.Errorf("direction %d: %w", d, pkg.ErrInvalidParameter)
	}
}

// get reads exactly n bytes of a control parameter block. The returned
// slice aliases the client buffer and is valid until the mutex is released.
func (c *Client) get(request, selector, channel, entity uint8, n int) ([]byte, error) {
	var setup device.SetupPacket
	device.ClassInterfaceSetup(&setup, true, request, selector, channel, entity, c.iface, uint16(n))

	got, err := c.dev.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, c.buf[:n])
	if err != nil {
		return nil, fmt.Errorf("get entity 0x%02X selector %d: %w", entity, selector, err)
	}
	if got < n {
		return nil, fmt.Errorf("get entity 0x%02X selector %d: %d of %d bytes: %w",
			entity, selector, got, n, pkg.ErrShortTransfer)
	}
	return c.buf[:n], nil
}

func (c *Client) set(selector, channel, entity uint8, data []byte) error {
	var setup device.SetupPacket
	device.ClassInterfaceSetup(&setup, false, audio.RequestCur, selector, channel, entity, c.iface, uint16(len(data)))

	if _, err := c.dev.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, data); err != nil {
		return fmt.Errorf("set entity 0x%02X selector %d: %w", entity, selector, err)
	}
	pkg.LogDebug(pkg.ComponentHost, "control set",
		"entity", entity,
		"selector", selector,
		"channel", channel,
		"length", len(data))
	return nil
}

// SampleRate returns the current sample rate of the clock source.
func (c *Client) SampleRate() (uint32, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b, err := c.get(audio.RequestCur, audio.ClockControlSamFreq, 0, audio.EntityClock, audio.Cur4Size)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// SetSampleRate switches the clock source to rate. The device stalls the
// request for rates it does not list.
func (c *Client) SetSampleRate(rate uint32) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var b [audio.Cur4Size]byte
	binary.LittleEndian.PutUint32(b[:], rate)
	return c.set(audio.ClockControlSamFreq, 0, audio.EntityClock, b[:])
}

// SampleRates returns the subranges of the clock source's RANGE block.
//
// The block header is read first to learn the subrange count, then the
// whole block.
func (c *Client) SampleRates() ([]RateRange, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	head, err := c.get(audio.RequestRange, audio.ClockControlSamFreq, 0, audio.EntityClock, 2)
	if err != nil {
		return nil, err
	}
	count := int(binary.LittleEndian.Uint16(head))
	size := 2 + count*audio.Range4SubrangeSize
	if size > maxRangeBlock {
		return nil, fmt.Errorf("%d rate subranges: %w", count, pkg.ErrBufferTooSmall)
	}

	b, err := c.get(audio.RequestRange, audio.ClockControlSamFreq, 0, audio.EntityClock, size)
	if err != nil {
		return nil, err
	}
	ranges := make([]RateRange, count)
	for i := range ranges {
		off := 2 + i*audio.Range4SubrangeSize
		ranges[i] = RateRange{
			Min: binary.LittleEndian.Uint32(b[off:]),
			Max: binary.LittleEndian.Uint32(b[off+4:]),
			Res: binary.LittleEndian.Uint32(b[off+8:]),
		}
	}
	return ranges, nil
}

// ClockValid reports whether the clock source is running.
func (c *Client) ClockValid() (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b, err := c.get(audio.RequestCur, audio.ClockControlClkValid, 0, audio.EntityClock, audio.Cur1Size)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// Mute returns the mute control of channel ch of the feature unit of d.
func (c *Client) Mute(d audio.Direction, ch uint8) (bool, error) {
	entity, err := featureUnit(d)
	if err != nil {
		return false, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b, err := c.get(audio.RequestCur, audio.FeatureControlMute, ch, entity, audio.Cur1Size)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// SetMute sets the mute control of channel ch of the feature unit of d.
func (c *Client) SetMute(d audio.Direction, ch uint8, mute bool) error {
	entity, err := featureUnit(d)
	if err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var b [audio.Cur1Size]byte
	if mute {
		b[0] = 1
	}
	return c.set(audio.FeatureControlMute, ch, entity, b[:])
}

// Volume returns the host-visible volume of channel ch of the feature unit
// of d, in 1/256 dB.
func (c *Client) Volume(d audio.Direction, ch uint8) (int16, error) {
	entity, err := featureUnit(d)
	if err != nil {
		return 0, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b, err := c.get(audio.RequestCur, audio.FeatureControlVolume, ch, entity, audio.Cur2Size)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

// SetVolume sets the volume of channel ch of the feature unit of d, in
// 1/256 dB.
func (c *Client) SetVolume(d audio.Direction, ch uint8, volume int16) error {
	entity, err := featureUnit(d)
	if err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var b [audio.Cur2Size]byte
	binary.LittleEndian.PutUint16(b[:], uint16(volume))
	return c.set(audio.FeatureControlVolume, ch, entity, b[:])
}

// VolumeRange returns the first volume subrange of the feature unit of d.
func (c *Client) VolumeRange(d audio.Direction) (audio.VolumeRange, error) {
	entity, err := featureUnit(d)
	if err != nil {
		return audio.VolumeRange{}, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b, err := c.get(audio.RequestRange, audio.FeatureControlVolume, audio.ChannelMaster, entity,
		2+audio.Range2SubrangeSize)
	if err != nil {
		return audio.VolumeRange{}, err
	}
	if binary.LittleEndian.Uint16(b) == 0 {
		return audio.VolumeRange{}, fmt.Errorf("volume range: no subranges: %w", pkg.ErrInvalidRequest)
	}
	return audio.VolumeRange{
		Min: int16(binary.LittleEndian.Uint16(b[2:])),
		Max: int16(binary.LittleEndian.Uint16(b[4:])),
		Res: int16(binary.LittleEndian.Uint16(b[6:])),
	}, nil
}
