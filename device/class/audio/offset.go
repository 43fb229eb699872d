package audio

import (
	"sync"

	"github.com/ardnew/usbheadset/pkg/fixed"
)

// Offset filter defaults.
const (
	DefaultOffsetShift      = 2
	DefaultOffsetResolution = 24
)

// OffsetFilter removes the DC bias of a microphone front end with a
// first-order adaptive high-pass per channel.
//
// Raw samples carry Resolution significant bits MSB-aligned in a 32-bit
// word. For each sample the filter subtracts the running offset, updates
// the offset by the difference shifted right by Shift, and returns the
// difference scaled by the channel gain. With Bypass set the masked
// sample is scaled without offset removal.
type OffsetFilter struct {
	mutex  sync.Mutex
	offset [2]int32
	mask   int32
	shift  uint
	bypass bool
}

// NewOffsetFilter creates a filter for resolution significant bits.
func NewOffsetFilter(resolution, shift uint, bypass bool) *OffsetFilter {
	if resolution == 0 || resolution > 32 {
		resolution = DefaultOffsetResolution
	}
	return &OffsetFilter{
		mask:   int32(^uint32(0) << (32 - resolution)),
		shift:  shift,
		bypass: bypass,
	}
}

// Reset clears the offset accumulators when zero is true.
func (f *OffsetFilter) Reset(zero bool) {
	if !zero {
		return
	}
	f.mutex.Lock()
	f.offset = [2]int32{}
	f.mutex.Unlock()
}

// Offset returns the accumulator of channel ch.
func (f *OffsetFilter) Offset(ch int) int32 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.offset[ch&1]
}

// Bypassed reports whether offset removal is disabled.
func (f *OffsetFilter) Bypassed() bool {
	return f.bypass
}

// Process filters one raw sample of channel ch (0 left, 1 right).
func (f *OffsetFilter) Process(ch int, s, gain int32) int32 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.process(ch&1, s, gain)
}

// Filter processes interleaved stereo raw samples in place with the
// per-channel gains.
func (f *OffsetFilter) Filter(samples []int32, gain [2]int32) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for i, s := range samples {
		samples[i] = f.process(i&1, s, gain[i&1])
	}
}

func (f *OffsetFilter) process(ch int, s, gain int32) int32 {
	if f.bypass {
		return fixed.Scale1p31x8p24(s&f.mask, gain)
	}
	diff := fixed.Saturate32(int64(s&f.mask) - int64(f.offset[ch]&f.mask))
	f.offset[ch] = fixed.Add32(f.offset[ch], diff>>f.shift)
	return fixed.Scale1p31x8p24(diff, gain)
}
