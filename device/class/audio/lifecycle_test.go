package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbheadset/pkg"
	"github.com/ardnew/usbheadset/pkg/fixed"
)

type modeRecorder struct {
	mutex sync.Mutex
	modes []StatusMode
}

func (r *modeRecorder) SetStatus(mode StatusMode) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.modes = append(r.modes, mode)
}

func (r *modeRecorder) last() StatusMode {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.modes[len(r.modes)-1]
}

type lifecycleFixture struct {
	*bridgeFixture
	filter    *OffsetFilter
	lifecycle *Lifecycle
	sink      *modeRecorder
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		bridgeFixture: newBridgeFixture(t),
		filter:        NewOffsetFilter(DefaultOffsetResolution, DefaultOffsetShift, false),
		sink:          &modeRecorder{},
	}
	f.lifecycle = NewLifecycle(f.state, f.bridge, f.filter, f.stats)
	f.lifecycle.SetStatusSink(f.sink)
	return f
}

func TestStatusMode(t *testing.T) {
	tests := []struct {
		mode   StatusMode
		name   string
		period time.Duration
	}{
		{StatusNotMounted, "not-mounted", 250 * time.Millisecond},
		{StatusMounted, "mounted", time.Second},
		{StatusStreaming, "streaming", 25 * time.Millisecond},
		{StatusSuspended, "suspended", 2500 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.mode.String())
		assert.Equal(t, tt.period, tt.mode.BlinkPeriod())
	}
	assert.Equal(t, "unknown", StatusMode(9).String())
}

func TestLifecycleSinkReportsCurrentMode(t *testing.T) {
	f := newLifecycleFixture(t)
	assert.Equal(t, []StatusMode{StatusNotMounted}, f.sink.modes)
	assert.Equal(t, StatusNotMounted, f.lifecycle.Mode())

	var got StatusMode = StatusStreaming
	f.lifecycle.SetStatusSink(StatusSinkFunc(func(mode StatusMode) { got = mode }))
	assert.Equal(t, StatusNotMounted, got)
}

func TestLifecycleSpeakerStream(t *testing.T) {
	f := newLifecycleFixture(t)
	f.lifecycle.Mount()
	assert.Equal(t, StatusMounted, f.sink.last())

	f.stats.Record(HistSpeakerAvailable, 64)
	require.NoError(t, f.lifecycle.SetInterface(InterfaceSpeaker, 1))
	assert.True(t, f.state.Active(Speaker))
	assert.False(t, f.state.Active(Mic))
	assert.Equal(t, StatusStreaming, f.lifecycle.Mode())
	assert.Zero(t, f.stats.Histograms()[HistSpeakerAvailable][64])

	require.NoError(t, f.lifecycle.SetInterface(InterfaceSpeaker, 0))
	assert.False(t, f.state.Active(Speaker))
	assert.Equal(t, StatusMounted, f.lifecycle.Mode())
}

func TestLifecycleMicStreamResetsFilter(t *testing.T) {
	f := newLifecycleFixture(t)
	f.filter.Process(0, 0x04000000, fixed.One8p24)
	require.NotZero(t, f.filter.Offset(0))

	require.NoError(t, f.lifecycle.SetInterface(InterfaceMic, 1))
	assert.True(t, f.state.Active(Mic))
	assert.Zero(t, f.filter.Offset(0))
}

func TestLifecycleInvalidAlternate(t *testing.T) {
	f := newLifecycleFixture(t)

	assert.NoError(t, f.lifecycle.SetInterface(InterfaceControl, 0))
	assert.ErrorIs(t, f.lifecycle.SetInterface(InterfaceControl, 1), pkg.ErrInvalidAlternate)
	assert.ErrorIs(t, f.lifecycle.SetInterface(InterfaceSpeaker, 2), pkg.ErrInvalidAlternate)
	assert.ErrorIs(t, f.lifecycle.SetInterface(5, 0), pkg.ErrInvalidAlternate)

	assert.False(t, f.state.Active(Speaker))
	assert.Equal(t, StatusNotMounted, f.lifecycle.Mode())
}

func TestLifecycleCloseEndpoint(t *testing.T) {
	f := newLifecycleFixture(t)
	require.NoError(t, f.lifecycle.SetInterface(InterfaceMic, 1))
	f.bridge.PostLoad(0)
	require.NotZero(t, f.bridge.Staged(Mic))

	// Only the close that precedes alternate 0 acts.
	f.lifecycle.CloseEndpoint(InterfaceMic, 1)
	assert.True(t, f.state.Active(Mic))

	f.lifecycle.CloseEndpoint(InterfaceMic, 0)
	assert.False(t, f.state.Active(Mic))
	assert.Zero(t, f.bridge.Staged(Mic))
	assert.Equal(t, StatusMounted, f.lifecycle.Mode())

	f.lifecycle.CloseEndpoint(InterfaceControl, 0)
	assert.Equal(t, StatusMounted, f.lifecycle.Mode())
}

func TestLifecycleBusEvents(t *testing.T) {
	f := newLifecycleFixture(t)

	f.lifecycle.Mount()
	require.NoError(t, f.lifecycle.SetInterface(InterfaceSpeaker, 1))
	require.NoError(t, f.lifecycle.SetInterface(InterfaceMic, 1))

	f.lifecycle.Suspend()
	assert.Equal(t, StatusSuspended, f.lifecycle.Mode())
	assert.False(t, f.state.Active(Speaker))
	assert.False(t, f.state.Active(Mic))

	f.lifecycle.Resume()
	assert.Equal(t, StatusMounted, f.lifecycle.Mode())

	require.NoError(t, f.lifecycle.SetInterface(InterfaceSpeaker, 1))
	f.lifecycle.Unmount()
	assert.Equal(t, StatusNotMounted, f.lifecycle.Mode())
	assert.False(t, f.state.Active(Speaker))

	assert.Equal(t, []StatusMode{
		StatusNotMounted,
		StatusMounted,
		StatusStreaming,
		StatusStreaming,
		StatusSuspended,
		StatusMounted,
		StatusStreaming,
		StatusNotMounted,
	}, f.sink.modes)
}
