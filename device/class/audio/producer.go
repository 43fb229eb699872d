package audio

import (
	"github.com/ardnew/usbheadset/pkg/fixed"
)

// Producer supplies microphone samples for the next IN frame.
//
// Produce fills dst with interleaved 16-bit samples for the mic stream
// described by snap, with the mic gain applied, and returns the number of
// samples produced.
type Producer interface {
	Produce(dst []int16, snap *Snapshot) (int, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(dst []int16, snap *Snapshot) (int, error)

// Produce calls f.
func (f ProducerFunc) Produce(dst []int16, snap *Snapshot) (int, error) {
	return f(dst, snap)
}

// I2SProducer reads the codec through the transport, removes the DC offset
// while applying the mic gain, and narrows to 16 bits.
type I2SProducer struct {
	transport *Transport
	filter    *OffsetFilter
	shift     uint
	raw       []int32
}

// NewI2SProducer creates a producer narrowing by shift bits.
func NewI2SProducer(transport *Transport, filter *OffsetFilter, shift uint) *I2SProducer {
	return &I2SProducer{
		transport: transport,
		filter:    filter,
		shift:     shift,
	}
}

// Produce implements Producer. The transport always delivers stereo
// frames; a mono stream keeps the left slot.
func (p *I2SProducer) Produce(dst []int16, snap *Snapshot) (int, error) {
	channels := int(snap.Mic.Format.Channels)
	frames := len(dst) / channels
	slots := frames * 2
	if cap(p.raw) < slots {
		p.raw = make([]int32, slots)
	}
	raw := p.raw[:slots]

	n, err := p.transport.ReadRaw(raw)
	raw = raw[:n]
	p.filter.Filter(raw, snap.Mic.Gain)

	if channels == 1 {
		for i := 0; i < n/2; i++ {
			dst[i] = fixed.Narrow(raw[2*i], p.shift)
		}
		return n / 2, err
	}
	for i, v := range raw {
		dst[i] = fixed.Narrow(v, p.shift)
	}
	return n, err
}

// Synthetic tone defaults.
const (
	DefaultToneHz    = 220
	DefaultAmplitude = 1000
)

// SyntheticProducer generates a square wave on every channel in place of
// the codec. It exercises the USB IN path without a microphone.
type SyntheticProducer struct {
	toneHz    int
	amplitude int16
	value     int16
	elapsed   int // frames since the last edge
}

// NewSyntheticProducer creates a square wave of toneHz at ±amplitude.
func NewSyntheticProducer(toneHz int, amplitude int16) *SyntheticProducer {
	if toneHz <= 0 {
		toneHz = DefaultToneHz
	}
	return &SyntheticProducer{
		toneHz:    toneHz,
		amplitude: amplitude,
		value:     amplitude,
	}
}

// Produce implements Producer.
func (p *SyntheticProducer) Produce(dst []int16, snap *Snapshot) (int, error) {
	channels := int(snap.Mic.Format.Channels)
	halfPeriod := int(snap.Rate) / (2 * p.toneHz)
	if halfPeriod < 1 {
		halfPeriod = 1
	}

	frames := len(dst) / channels
	for f := 0; f < frames; f++ {
		if p.elapsed >= halfPeriod {
			p.value = -p.value
			p.elapsed = 0
		}
		p.elapsed++
		for ch := 0; ch < channels; ch++ {
			dst[f*channels+ch] = fixed.Mul1p31x8p24(int32(p.value)<<16, snap.Mic.Gain[ch&1])
		}
	}
	return frames * channels, nil
}
