package audio

import (
	"fmt"
	"sync"

	"github.com/ardnew/usbheadset/pkg"
)

// Direction selects a stream.
type Direction uint8

// Stream directions.
const (
	Speaker Direction = iota // USB OUT to I2S TX
	Mic                      // I2S RX to USB IN
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Speaker:
		return "speaker"
	case Mic:
		return "mic"
	default:
		return "unknown"
	}
}

// StreamSnapshot is a consistent copy of one direction's state.
type StreamSnapshot struct {
	Active     bool
	Alternate  uint8
	Format     Format
	BytesPerMs int
	Gain       [2]int32 // Q8.24, left and right
	Mute       [NumChannels]bool
	Volume     [NumChannels]int16 // host-visible, 1/256 dB
}

// Snapshot is a consistent copy of the device state.
type Snapshot struct {
	Rate    uint32
	Speaker StreamSnapshot
	Mic     StreamSnapshot
}

// Stream returns the snapshot of direction d.
func (s *Snapshot) Stream(d Direction) *StreamSnapshot {
	if d == Mic {
		return &s.Mic
	}
	return &s.Speaker
}

type stream struct {
	formats    []Format
	format     Format
	alternate  uint8
	active     bool
	bytesPerMs int
	gain       ChannelGainState
}

func (st *stream) recompute(rate uint32) {
	st.bytesPerMs = BytesPerMs(rate, st.format.ResolutionBits, st.format.Channels)
}

// DeviceState owns the negotiated rate and the per-direction format, gain
// and activity. The control path is the only writer; the data path reads
// through Snapshot, so it never observes a rate without its bytesPerMs.
type DeviceState struct {
	mutex   sync.RWMutex
	rate    uint32
	streams [2]stream
}

// NewDeviceState creates the state at DefaultRate with the first format of
// each direction selected and both streams closed. micOffset is the mic
// volume offset in 1/256 dB.
func NewDeviceState(speakerFormats, micFormats []Format, micOffset int16) (*DeviceState, error) {
	if len(speakerFormats) == 0 || len(micFormats) == 0 {
		return nil, fmt.Errorf("stream formats: %w", pkg.ErrInvalidParameter)
	}
	s := &DeviceState{rate: DefaultRate}
	s.streams[Speaker] = stream{
		formats: speakerFormats,
		format:  speakerFormats[0],
		gain:    NewChannelGainState(0),
	}
	s.streams[Mic] = stream{
		formats: micFormats,
		format:  micFormats[0],
		gain:    NewChannelGainState(micOffset),
	}
	for i := range s.streams {
		s.streams[i].recompute(s.rate)
	}
	return s, nil
}

// Rate returns the current sample rate.
func (s *DeviceState) Rate() uint32 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.rate
}

// SetRate changes the sample rate. The rate is validated first; apply runs
// under the write lock after both bytesPerMs values are recomputed, so no
// reader sees the new rate before the hardware follows it. If apply fails
// the previous rate is restored. Setting the current rate is a no-op.
func (s *DeviceState) SetRate(rate uint32, apply func(rate uint32) error) (changed bool, err error) {
	if err := ValidateRate(rate); err != nil {
		return false, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if rate == s.rate {
		return false, nil
	}
	prev := s.rate
	s.setRate(rate)
	if apply != nil {
		if err := apply(rate); err != nil {
			s.setRate(prev)
			return false, err
		}
	}
	return true, nil
}

func (s *DeviceState) setRate(rate uint32) {
	s.rate = rate
	for i := range s.streams {
		s.streams[i].recompute(rate)
	}
}

// Snapshot returns a consistent copy of the state.
func (s *DeviceState) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap := Snapshot{Rate: s.rate}
	for d := Speaker; d <= Mic; d++ {
		st := &s.streams[d]
		out := snap.Stream(d)
		out.Active = st.active
		out.Alternate = st.alternate
		out.Format = st.format
		out.BytesPerMs = st.bytesPerMs
		out.Gain = st.gain.Linear()
		out.Mute = st.gain.mute
		out.Volume = st.gain.volume
	}
	return snap
}

// BytesPerMs returns the per-millisecond budget of direction d.
func (s *DeviceState) BytesPerMs(d Direction) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.streams[d].bytesPerMs
}

// Active reports whether direction d is streaming.
func (s *DeviceState) Active(d Direction) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.streams[d].active
}

// Formats returns the formats of direction d in alternate setting order.
func (s *DeviceState) Formats(d Direction) []Format {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]Format(nil), s.streams[d].formats...)
}

// Open selects the format of alternate setting alt (1-based) and marks
// direction d active.
func (s *DeviceState) Open(d Direction, alt uint8) (Format, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st := &s.streams[d]
	if alt == 0 || int(alt) > len(st.formats) {
		return Format{}, fmt.Errorf("%s alternate %d: %w", d, alt, pkg.ErrInvalidAlternate)
	}
	st.format = st.formats[alt-1]
	st.alternate = alt
	st.recompute(s.rate)
	st.active = true
	return st.format, nil
}

// Close marks direction d inactive and reports whether it was active.
func (s *DeviceState) Close(d Direction) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st := &s.streams[d]
	was := st.active
	st.active = false
	st.alternate = 0
	return was
}

// Mute returns the mute flag of channel ch in direction d.
func (s *DeviceState) Mute(d Direction, ch uint8) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.streams[d].gain.Mute(ch)
}

// SetMute sets the mute flag of channel ch in direction d.
func (s *DeviceState) SetMute(d Direction, ch uint8, mute bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.streams[d].gain.SetMute(ch, mute)
}

// Volume returns the host-visible volume of channel ch in direction d.
func (s *DeviceState) Volume(d Direction, ch uint8) (int16, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.streams[d].gain.Volume(ch)
}

// SetVolume sets the host-visible volume of channel ch in direction d.
func (s *DeviceState) SetVolume(d Direction, ch uint8, volume int16) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.streams[d].gain.SetVolume(ch, volume)
}

// Gain returns the Q8.24 left and right gains of direction d.
func (s *DeviceState) Gain(d Direction) [2]int32 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.streams[d].gain.Linear()
}
