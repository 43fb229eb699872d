package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/usbheadset/pkg"
)

// StatusMode is the indicator state reported to the status sink.
type StatusMode uint8

// Indicator modes.
const (
	StatusNotMounted StatusMode = iota
	StatusMounted
	StatusStreaming
	StatusSuspended
)

// String returns the mode name.
func (m StatusMode) String() string {
	switch m {
	case StatusNotMounted:
		return "not-mounted"
	case StatusMounted:
		return "mounted"
	case StatusStreaming:
		return "streaming"
	case StatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// BlinkPeriod returns the indicator blink period of the mode.
func (m StatusMode) BlinkPeriod() time.Duration {
	switch m {
	case StatusMounted:
		return 1000 * time.Millisecond
	case StatusStreaming:
		return 25 * time.Millisecond
	case StatusSuspended:
		return 2500 * time.Millisecond
	default:
		return 250 * time.Millisecond
	}
}

// StatusSink receives every indicator mode change. It is called from the
// control loop and must not block.
type StatusSink interface {
	SetStatus(mode StatusMode)
}

// StatusSinkFunc adapts a function to StatusSink.
type StatusSinkFunc func(mode StatusMode)

// SetStatus calls f.
func (f StatusSinkFunc) SetStatus(mode StatusMode) {
	f(mode)
}

// Lifecycle opens and closes the streams on alternate setting changes and
// bus events, and tracks the indicator mode.
type Lifecycle struct {
	state  *DeviceState
	bridge *Bridge
	filter *OffsetFilter
	stats  *Stats

	mutex sync.Mutex
	mode  StatusMode
	sink  StatusSink
}

// NewLifecycle creates a lifecycle in StatusNotMounted.
func NewLifecycle(state *DeviceState, bridge *Bridge, filter *OffsetFilter, stats *Stats) *Lifecycle {
	return &Lifecycle{
		state:  state,
		bridge: bridge,
		filter: filter,
		stats:  stats,
	}
}

// SetStatusSink installs the indicator sink and reports the current mode
// to it.
func (l *Lifecycle) SetStatusSink(sink StatusSink) {
	l.mutex.Lock()
	l.sink = sink
	mode := l.mode
	l.mutex.Unlock()

	if sink != nil {
		sink.SetStatus(mode)
	}
}

// Mode returns the current indicator mode.
func (l *Lifecycle) Mode() StatusMode {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.mode
}

func (l *Lifecycle) setMode(mode StatusMode) {
	l.mutex.Lock()
	old := l.mode
	l.mode = mode
	sink := l.sink
	l.mutex.Unlock()

	if old != mode {
		pkg.LogDebug(pkg.ComponentLifecycle, "status changed",
			"from", old.String(),
			"to", mode.String())
	}
	if sink != nil {
		sink.SetStatus(mode)
	}
}

func streamDirection(itf uint8) (Direction, bool) {
	switch itf {
	case InterfaceSpeaker:
		return Speaker, true
	case InterfaceMic:
		return Mic, true
	default:
		return 0, false
	}
}

// SetInterface applies alternate setting alt of interface itf.
func (l *Lifecycle) SetInterface(itf, alt uint8) error {
	d, ok := streamDirection(itf)
	if !ok {
		if itf == InterfaceControl && alt == 0 {
			return nil
		}
		return fmt.Errorf("interface %d alternate %d: %w", itf, alt, pkg.ErrInvalidAlternate)
	}

	if alt == 0 {
		l.close(d)
		pkg.LogInfo(pkg.ComponentLifecycle, "stream closed",
			"stream", d.String(),
			"interface", itf)
		l.setMode(StatusMounted)
		return nil
	}

	format, err := l.state.Open(d, alt)
	if err != nil {
		return err
	}
	l.bridge.ResetCounters(d)
	l.stats.Reset(d)
	if d == Mic {
		l.filter.Reset(true)
	}
	pkg.LogInfo(pkg.ComponentLifecycle, "stream opened",
		"stream", d.String(),
		"interface", itf,
		"alternate", alt,
		"bits", format.ResolutionBits,
		"channels", format.Channels,
		"rate", l.state.Rate(),
		"bytesPerMs", l.state.BytesPerMs(d))
	l.setMode(StatusStreaming)
	return nil
}

// CloseEndpoint handles the endpoint close that precedes alternate
// setting 0 of a streaming interface.
func (l *Lifecycle) CloseEndpoint(itf, alt uint8) {
	d, ok := streamDirection(itf)
	if !ok || alt != 0 {
		return
	}
	l.close(d)
	l.setMode(StatusMounted)
}

func (l *Lifecycle) close(d Direction) {
	if l.state.Close(d) {
		l.stats.Log(d)
	}
	l.bridge.ResetCounters(d)
}

// Mount handles selection of the configuration.
func (l *Lifecycle) Mount() {
	l.close(Speaker)
	l.close(Mic)
	pkg.LogInfo(pkg.ComponentLifecycle, "usb mounted")
	l.setMode(StatusMounted)
}

// Unmount handles loss of the configuration.
func (l *Lifecycle) Unmount() {
	l.close(Speaker)
	l.close(Mic)
	pkg.LogInfo(pkg.ComponentLifecycle, "usb unmounted")
	l.setMode(StatusNotMounted)
}

// Suspend handles a bus suspend.
func (l *Lifecycle) Suspend() {
	l.close(Speaker)
	l.close(Mic)
	pkg.LogInfo(pkg.ComponentLifecycle, "usb suspended")
	l.setMode(StatusSuspended)
}

// Resume handles a bus resume.
func (l *Lifecycle) Resume() {
	pkg.LogInfo(pkg.ComponentLifecycle, "usb resumed")
	l.setMode(StatusMounted)
}
