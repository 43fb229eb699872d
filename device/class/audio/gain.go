package audio

import (
	"fmt"
	"math"

	"github.com/ardnew/usbheadset/pkg"
	"github.com/ardnew/usbheadset/pkg/fixed"
)

// VolumeRange is the single subrange advertised for a VOLUME control, in
// 1/256 dB.
type VolumeRange struct {
	Min, Max, Res int16
}

// Volume ranges advertised per feature unit.
var (
	SpeakerVolumeRange = VolumeRange{Min: fixed.DB(-40), Max: fixed.DB(0), Res: fixed.DB(2)}
	MicVolumeRange     = VolumeRange{Min: fixed.DB(-40), Max: fixed.DB(20), Res: fixed.DB(2)}
)

// ChannelGainState holds mute and volume per channel (master, left,
// right) and the linear gain derived from them.
//
// The linear gains are recomputed on every mutation. ChannelGainState is
// not synchronized; DeviceState guards it.
type ChannelGainState struct {
	mute   [NumChannels]bool
	volume [NumChannels]int16 // host-visible, 1/256 dB
	linear [2]int32           // Q8.24, left and right

	// offset is added to the master volume before the table lookup, which
	// shifts the overall gain by offset. This is a compatibility hack for
	// host drivers that refuse to set mic volumes above 0 dB.
	offset int16
}

// NewChannelGainState returns an unmuted state at 0 dB with the given
// volume offset in 1/256 dB.
func NewChannelGainState(offset int16) ChannelGainState {
	g := ChannelGainState{offset: offset}
	g.recompute()
	return g
}

func checkChannel(ch uint8) error {
	if ch >= NumChannels {
		return fmt.Errorf("channel %d: %w", ch, pkg.ErrInvalidChannel)
	}
	return nil
}

// Mute returns the mute flag of ch.
func (g *ChannelGainState) Mute(ch uint8) (bool, error) {
	if err := checkChannel(ch); err != nil {
		return false, err
	}
	return g.mute[ch], nil
}

// SetMute sets the mute flag of ch.
func (g *ChannelGainState) SetMute(ch uint8, mute bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	g.mute[ch] = mute
	g.recompute()
	return nil
}

// Volume returns the host-visible volume of ch in 1/256 dB.
func (g *ChannelGainState) Volume(ch uint8) (int16, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	return g.volume[ch], nil
}

// SetVolume sets the host-visible volume of ch in 1/256 dB.
func (g *ChannelGainState) SetVolume(ch uint8, volume int16) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	g.volume[ch] = volume
	g.recompute()
	return nil
}

// Offset returns the volume offset in 1/256 dB.
func (g *ChannelGainState) Offset() int16 {
	return g.offset
}

// Linear returns the Q8.24 gains for left and right.
func (g *ChannelGainState) Linear() [2]int32 {
	return g.linear
}

func (g *ChannelGainState) effective(ch int) int16 {
	v := int32(g.volume[ch])
	if ch == ChannelMaster {
		v += int32(g.offset)
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func (g *ChannelGainState) recompute() {
	master := fixed.VolumeGain(g.effective(ChannelMaster))
	for ch := 0; ch < 2; ch++ {
		if g.mute[ChannelMaster] || g.mute[ch+1] {
			g.linear[ch] = 0
			continue
		}
		g.linear[ch] = fixed.Mul8p24x8p24(master, fixed.VolumeGain(g.effective(ch+1)))
	}
}

// Apply scales samples in place by the current gain.
func (g *ChannelGainState) Apply(samples []int16, channels int) {
	ApplyGain(samples, channels, g.linear)
}

// ApplyGain scales interleaved samples in place. A mono block uses the
// left gain; a stereo block alternates left and right.
func ApplyGain(samples []int16, channels int, linear [2]int32) {
	if channels == 1 {
		for i, s := range samples {
			samples[i] = fixed.Mul1p31x8p24(int32(s)<<16, linear[0])
		}
		return
	}
	for i, s := range samples {
		samples[i] = fixed.Mul1p31x8p24(int32(s)<<16, linear[i&1])
	}
}
