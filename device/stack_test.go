package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/pkg"
)

type setupEvent struct {
	setup hal.SetupPacket
	err   error
}

// mockHAL implements hal.DeviceHAL for testing.
type mockHAL struct {
	mutex          sync.Mutex
	initCalled     bool
	startCalled    bool
	stopCalled     bool
	address        uint8
	endpoints      []hal.EndpointConfig
	configureCalls int
	available      map[uint8]int
	readData       map[uint8][]byte
	writeData      map[uint8][][]byte

	events chan setupEvent
	ep0Out chan []byte
	ep0In  chan []byte
	acks   chan struct{}
	stalls chan struct{}
}

func newMockHAL() *mockHAL {
	return &mockHAL{
		available: make(map[uint8]int),
		readData:  make(map[uint8][]byte),
		writeData: make(map[uint8][][]byte),
		events:    make(chan setupEvent, 16),
		ep0Out:    make(chan []byte, 16),
		ep0In:     make(chan []byte, 16),
		acks:      make(chan struct{}, 16),
		stalls:    make(chan struct{}, 16),
	}
}

func (m *mockHAL) Init(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.initCalled = true
	return nil
}

func (m *mockHAL) Start() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.startCalled = true
	return nil
}

func (m *mockHAL) Stop() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stopCalled = true
	return nil
}

func (m *mockHAL) SetAddress(address uint8) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.address = address
	return nil
}

func (m *mockHAL) ConfigureEndpoints(endpoints []hal.EndpointConfig) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.endpoints = endpoints
	m.configureCalls++
	return nil
}

func (m *mockHAL) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-m.events:
		if ev.err != nil {
			return ev.err
		}
		*out = ev.setup
		return nil
	}
}

func (m *mockHAL) WriteEP0(ctx context.Context, data []byte) error {
	m.ep0In <- append([]byte{}, data...)
	return nil
}

func (m *mockHAL) ReadEP0(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case data := <-m.ep0Out:
		return copy(buf, data), nil
	}
}

func (m *mockHAL) StallEP0() error {
	m.stalls <- struct{}{}
	return nil
}

func (m *mockHAL) AckEP0() error {
	m.acks <- struct{}{}
	return nil
}

func (m *mockHAL) Available(address uint8) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.available[address]
}

func (m *mockHAL) Read(ctx context.Context, address uint8, buf []byte) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return copy(buf, m.readData[address]), nil
}

func (m *mockHAL) Write(ctx context.Context, address uint8, data []byte) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.writeData[address] = append(m.writeData[address], append([]byte{}, data...))
	return len(data), nil
}

func (m *mockHAL) IsConnected() bool                     { return true }
func (m *mockHAL) GetSpeed() hal.Speed                   { return hal.SpeedFull }
func (m *mockHAL) WaitConnect(ctx context.Context) error { return nil }

func (m *mockHAL) busEvent(err error) {
	m.events <- setupEvent{err: err}
}

// control runs one control transfer and reports the IN response or stall.
func (m *mockHAL) control(t *testing.T, setup *SetupPacket, data []byte) ([]byte, bool) {
	t.Helper()
	if len(data) > 0 {
		m.ep0Out <- data
	}
	m.events <- setupEvent{setup: hal.SetupPacket{
		RequestType: setup.RequestType,
		Request:     setup.Request,
		Value:       setup.Value,
		Index:       setup.Index,
		Length:      setup.Length,
	}}

	select {
	case resp := <-m.ep0In:
		return resp, false
	case <-m.acks:
		return nil, false
	case <-m.stalls:
		return nil, true
	case <-time.After(time.Second):
		t.Fatalf("control transfer %s timed out", setup.String())
		return nil, false
	}
}

func startStack(t *testing.T) (*Stack, *mockHAL, *recordingDriver, chan BusEvent) {
	t.Helper()
	dev, _ := newTestDevice(t)
	drv := newRecordingDriver()
	for _, iface := range dev.Interfaces() {
		if err := iface.SetClassDriver(drv); err != nil {
			t.Fatal(err)
		}
	}

	m := newMockHAL()
	stack := NewStack(dev, m)
	events := make(chan BusEvent, 16)
	stack.SetOnBusEvent(func(ev BusEvent) { events <- ev })

	if err := stack.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = stack.Stop() })
	return stack, m, drv, events
}

func waitEvent(t *testing.T, events chan BusEvent, want BusEvent) {
	t.Helper()
	select {
	case ev := <-events:
		if ev != want {
			t.Fatalf("bus event = %v, want %v", ev, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func enumerate(t *testing.T, m *mockHAL, events chan BusEvent) {
	t.Helper()
	m.busEvent(pkg.ErrReset)
	setAddr := SetupPacket{Request: RequestSetAddress, Value: 9}
	if _, stalled := m.control(t, &setAddr, nil); stalled {
		t.Fatal("SET_ADDRESS stalled")
	}
	var setCfg SetupPacket
	SetConfigurationSetup(&setCfg, ConfigurationValue)
	if _, stalled := m.control(t, &setCfg, nil); stalled {
		t.Fatal("SET_CONFIGURATION stalled")
	}
	waitEvent(t, events, BusEventMount)
}

func TestStackStartStop(t *testing.T) {
	dev, _ := newTestDevice(t)
	m := newMockHAL()
	stack := NewStack(dev, m)

	if err := stack.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !stack.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := stack.Start(context.Background()); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := stack.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stack.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if !m.initCalled || !m.startCalled || !m.stopCalled {
		t.Errorf("HAL calls init=%v start=%v stop=%v", m.initCalled, m.startCalled, m.stopCalled)
	}
	if err := stack.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestStackEnumeration(t *testing.T) {
	stack, m, _, events := startStack(t)
	enumerate(t, m, events)

	m.mutex.Lock()
	address, endpoints := m.address, len(m.endpoints)
	m.mutex.Unlock()

	if address != 9 {
		t.Errorf("HAL address = %d, want 9", address)
	}
	if endpoints != 2 {
		t.Errorf("configured endpoints = %d, want 2", endpoints)
	}
	if !stack.Device().IsConfigured() {
		t.Error("device not configured")
	}

	var get SetupPacket
	GetDescriptorSetup(&get, DescriptorTypeConfiguration, 0, 4)
	resp, stalled := m.control(t, &get, nil)
	if stalled || len(resp) != 4 {
		t.Errorf("GET_DESCRIPTOR = % X stalled=%v, want 4 bytes", resp, stalled)
	}

	var unset SetupPacket
	SetConfigurationSetup(&unset, 0)
	m.control(t, &unset, nil)
	waitEvent(t, events, BusEventUnmount)
}

func TestStackClassRequests(t *testing.T) {
	_, m, drv, events := startStack(t)
	enumerate(t, m, events)

	drv.mutex.Lock()
	drv.response = []byte{0x01, 0x00, 0x80, 0x3E, 0x00, 0x00, 0x80, 0x3E, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	drv.mutex.Unlock()

	var get SetupPacket
	ClassInterfaceSetup(&get, true, 0x02, 0x01, 0, 0x04, 0, 2)
	resp, stalled := m.control(t, &get, nil)
	if stalled {
		t.Fatal("class GET stalled")
	}
	if len(resp) != 2 || resp[0] != 0x01 || resp[1] != 0x00 {
		t.Errorf("response = % X, want truncated to 01 00", resp)
	}

	var set SetupPacket
	ClassInterfaceSetup(&set, false, 0x01, 0x01, 0, 0x04, 0, 4)
	if _, stalled := m.control(t, &set, []byte{0x00, 0x7D, 0x00, 0x00}); stalled {
		t.Fatal("class SET stalled")
	}

	drv.mutex.Lock()
	payload := drv.payloads[len(drv.payloads)-1]
	drv.handled = false
	drv.mutex.Unlock()
	if string(payload) != "\x00\x7D\x00\x00" {
		t.Errorf("driver payload = % X, want 00 7D 00 00", payload)
	}

	if _, stalled := m.control(t, &get, nil); !stalled {
		t.Error("unhandled class request was not stalled")
	}

	ClassInterfaceSetup(&get, true, 0x01, 0x01, 0, 0x04, 7, 4)
	if _, stalled := m.control(t, &get, nil); !stalled {
		t.Error("request to unknown interface was not stalled")
	}
}

func TestStackSetInterface(t *testing.T) {
	_, m, drv, events := startStack(t)
	enumerate(t, m, events)

	var setup SetupPacket
	SetInterfaceSetup(&setup, 2, 1)
	if _, stalled := m.control(t, &setup, nil); stalled {
		t.Fatal("SET_INTERFACE stalled")
	}
	drv.mutex.Lock()
	alt := drv.alts[2]
	drv.altErr = pkg.ErrInvalidAlternate
	drv.mutex.Unlock()
	if alt != 1 {
		t.Errorf("driver alternate = %d, want 1", alt)
	}

	SetInterfaceSetup(&setup, 2, 3)
	if _, stalled := m.control(t, &setup, nil); !stalled {
		t.Error("rejected SET_INTERFACE was not stalled")
	}
}

func TestStackBusEvents(t *testing.T) {
	stack, m, _, events := startStack(t)
	enumerate(t, m, events)

	m.busEvent(pkg.ErrSuspend)
	waitEvent(t, events, BusEventSuspend)
	if stack.Device().State() != StateSuspended {
		t.Errorf("State() = %v, want Suspended", stack.Device().State())
	}

	m.busEvent(pkg.ErrResume)
	waitEvent(t, events, BusEventResume)
	if stack.Device().State() != StateConfigured {
		t.Errorf("State() = %v, want Configured", stack.Device().State())
	}

	m.busEvent(pkg.ErrReset)
	waitEvent(t, events, BusEventUnmount)
	if stack.Device().IsConfigured() {
		t.Error("device still configured after reset")
	}

	m.busEvent(pkg.ErrNoDevice)
	waitEvent(t, events, BusEventUnmount)

	// A transient error must not stop the control loop.
	m.busEvent(pkg.ErrTimeout)
	setAddr := SetupPacket{Request: RequestSetAddress, Value: 4}
	if _, stalled := m.control(t, &setAddr, nil); stalled {
		t.Error("control loop stopped after transient error")
	}
}

func TestStackDataEndpoints(t *testing.T) {
	stack, m, _, events := startStack(t)
	ctx := context.Background()

	m.mutex.Lock()
	m.available[0x01] = 64
	m.readData[0x01] = []byte{1, 2, 3, 4}
	m.mutex.Unlock()

	if stack.Available(0x01) != 0 {
		t.Error("Available() before configuration should be 0")
	}
	if _, err := stack.Read(ctx, 0x01, make([]byte, 4)); !errors.Is(err, pkg.ErrNotConfigured) {
		t.Errorf("Read() error = %v, want ErrNotConfigured", err)
	}
	if _, err := stack.Write(ctx, 0x82, []byte{1}); !errors.Is(err, pkg.ErrNotConfigured) {
		t.Errorf("Write() error = %v, want ErrNotConfigured", err)
	}

	enumerate(t, m, events)

	if got := stack.Available(0x01); got != 64 {
		t.Errorf("Available() = %d, want 64", got)
	}
	buf := make([]byte, 4)
	if n, err := stack.Read(ctx, 0x01, buf); err != nil || n != 4 {
		t.Errorf("Read() = %d, %v", n, err)
	}
	if n, err := stack.Write(ctx, 0x82, []byte{9, 9}); err != nil || n != 2 {
		t.Errorf("Write() = %d, %v", n, err)
	}
}

type countingIsoHandler struct {
	mutex  sync.Mutex
	frame  []byte
	sent   []int
	cancel context.CancelFunc
	limit  int
}

func (h *countingIsoHandler) PreLoad() []byte {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.frame
}

func (h *countingIsoHandler) PostLoad(sent int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.sent = append(h.sent, sent)
	if len(h.sent) == h.limit {
		h.cancel()
	}
}

func TestStackServeIsochronousIn(t *testing.T) {
	stack, m, _, events := startStack(t)
	enumerate(t, m, events)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h := &countingIsoHandler{frame: make([]byte, 64), cancel: cancel, limit: 3}

	if err := stack.ServeIsochronousIn(ctx, 0x82, h); err != nil {
		t.Fatalf("ServeIsochronousIn() error = %v", err)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.sent) < 3 {
		t.Fatalf("PostLoad calls = %d, want >= 3", len(h.sent))
	}
	for i, n := range h.sent {
		if n != 64 {
			t.Errorf("frame %d sent = %d, want 64", i, n)
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.writeData[0x82]) < 3 {
		t.Errorf("IN writes = %d, want >= 3", len(m.writeData[0x82]))
	}
}
