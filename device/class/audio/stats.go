package audio

import (
	"strconv"
	"sync"

	"github.com/ardnew/usbheadset/pkg"
)

// HistogramBuckets is the number of byte-count buckets per histogram.
const HistogramBuckets = 256

// Histogram names.
const (
	HistSpeakerAvailable = "speaker_available" // bytes read from the OUT endpoint per tick
	HistMicProduced      = "mic_produced"      // bytes produced for the next IN frame
	HistMicSent          = "mic_sent"          // bytes sent per IN frame
)

// Histogram counts transfer sizes. Sizes beyond the last bucket land in
// it.
type Histogram [HistogramBuckets]uint32

// Record counts one transfer of n bytes.
func (h *Histogram) Record(n int) {
	if n < 0 {
		n = 0
	}
	if n >= HistogramBuckets {
		n = HistogramBuckets - 1
	}
	h[n]++
}

// Total returns the number of recorded transfers.
func (h *Histogram) Total() uint64 {
	var total uint64
	for _, c := range h {
		total += uint64(c)
	}
	return total
}

// Stats holds the transfer-size histograms of both directions.
type Stats struct {
	mutex sync.Mutex
	hist  map[string]*Histogram
}

// NewStats creates empty histograms.
func NewStats() *Stats {
	return &Stats{hist: map[string]*Histogram{
		HistSpeakerAvailable: {},
		HistMicProduced:      {},
		HistMicSent:          {},
	}}
}

// DirectionHistograms returns the histogram names that belong to d.
func DirectionHistograms(d Direction) []string {
	if d == Mic {
		return []string{HistMicProduced, HistMicSent}
	}
	return []string{HistSpeakerAvailable}
}

// Record counts n bytes in histogram name.
func (s *Stats) Record(name string, n int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if h, ok := s.hist[name]; ok {
		h.Record(n)
	}
}

// Reset clears the histograms of direction d.
func (s *Stats) Reset(d Direction) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, name := range DirectionHistograms(d) {
		*s.hist[name] = Histogram{}
	}
}

// Histograms returns a copy of every histogram.
func (s *Stats) Histograms() map[string][]uint32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make(map[string][]uint32, len(s.hist))
	for name, h := range s.hist {
		out[name] = append([]uint32(nil), h[:]...)
	}
	return out
}

// Log writes the non-empty buckets of direction d at info level.
func (s *Stats) Log(d Direction) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, name := range DirectionHistograms(d) {
		h := s.hist[name]
		total := h.Total()
		if total == 0 {
			continue
		}
		args := []any{"histogram", name, "transfers", total}
		for size, count := range h {
			if count > 0 {
				args = append(args, sizeKey(size), count)
			}
		}
		pkg.LogInfo(pkg.ComponentBridge, "transfer size statistics", args...)
	}
}

func sizeKey(size int) string {
	return "b" + strconv.Itoa(size)
}
