package audio

import (
	"fmt"

	"github.com/ardnew/usbheadset/pkg"
)

// DefaultRate is the sample rate before the host selects one.
const DefaultRate uint32 = 16000

// SupportedRates lists the clock source frequencies in RANGE order.
var SupportedRates = [...]uint32{16000, 24000, 32000, 44100}

// IsSupportedRate reports whether rate is one of SupportedRates.
func IsSupportedRate(rate uint32) bool {
	for _, r := range SupportedRates {
		if r == rate {
			return true
		}
	}
	return false
}

// ValidateRate returns pkg.ErrUnsupportedRate for a rate outside
// SupportedRates.
func ValidateRate(rate uint32) error {
	if !IsSupportedRate(rate) {
		return fmt.Errorf("sample rate %d: %w", rate, pkg.ErrUnsupportedRate)
	}
	return nil
}

// Format is one streaming format, selected by alternate setting 1+index.
type Format struct {
	ResolutionBits uint8
	Channels       uint8
}

// FrameBytes returns the size of one sample frame.
func (f Format) FrameBytes() int {
	return int(f.ResolutionBits) / 8 * int(f.Channels)
}

// BytesPerMs returns the bytes one millisecond of audio occupies at rate.
func BytesPerMs(rate uint32, bits, channels uint8) int {
	return int(rate/1000) * int(bits) * int(channels) / 8
}
