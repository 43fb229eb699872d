package loopback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/pkg"
)

// MaxEndpoints is the number of data endpoint slots (1-15 IN and OUT).
const MaxEndpoints = 15

// DefaultQueueBytes bounds each endpoint queue.
const DefaultQueueBytes = 16 * 1024

// DefaultControlTimeout bounds a host control transfer.
const DefaultControlTimeout = time.Second

type controlEvent struct {
	setup hal.SetupPacket
	err   error
}

type controlResponse struct {
	data    []byte
	stalled bool
}

// endpointQueue is a bounded byte queue for one data endpoint.
type endpointQueue struct {
	open    bool
	config  hal.EndpointConfig
	packets [][]byte
	size    int
	dropped int
}

// HAL is an in-memory hal.DeviceHAL. The host side of the bus is driven
// through Control, WriteOut, ReadIn and the bus event methods.
type HAL struct {
	connected uint32 // Atomic: 1 = connected
	address   uint8
	speed     hal.Speed

	events    chan controlEvent
	ep0Out    chan []byte
	responses chan controlResponse

	// IN endpoints at [0-14], OUT at [15-29]
	queues     [MaxEndpoints * 2]endpointQueue
	queueLimit int

	controlMutex   sync.Mutex
	controlTimeout time.Duration

	mutex     sync.RWMutex
	initDone  bool
	connectCh chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
}

// New creates a loopback HAL.
func New() *HAL {
	return &HAL{
		speed:          hal.SpeedFull,
		events:         make(chan controlEvent, 8),
		ep0Out:         make(chan []byte, 1),
		responses:      make(chan controlResponse, 1),
		queueLimit:     DefaultQueueBytes,
		controlTimeout: DefaultControlTimeout,
		connectCh:      make(chan struct{}, 1),
		closeCh:        make(chan struct{}),
	}
}

// SetQueueLimit bounds each endpoint queue to n bytes.
func (h *HAL) SetQueueLimit(n int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.queueLimit = n
}

func queueIndex(address uint8) (int, error) {
	num := int(address & 0x0F)
	if num < 1 || num > MaxEndpoints {
		return 0, pkg.ErrInvalidEndpoint
	}
	if address&0x80 != 0 {
		return num - 1, nil
	}
	return MaxEndpoints + num - 1, nil
}

// Init implements hal.DeviceHAL.
func (h *HAL) Init(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initDone {
		return pkg.ErrAlreadyRunning
	}
	h.initDone = true
	pkg.LogDebug(pkg.ComponentHAL, "loopback HAL initialized")
	return nil
}

// Start implements hal.DeviceHAL.
func (h *HAL) Start() error {
	h.mutex.RLock()
	initDone := h.initDone
	h.mutex.RUnlock()
	if !initDone {
		return pkg.ErrNotConfigured
	}

	atomic.StoreUint32(&h.connected, 1)
	select {
	case h.connectCh <- struct{}{}:
	default:
	}
	pkg.LogInfo(pkg.ComponentHAL, "loopback HAL started")
	return nil
}

// Stop implements hal.DeviceHAL.
func (h *HAL) Stop() error {
	atomic.StoreUint32(&h.connected, 0)
	h.closeOnce.Do(func() {
		close(h.closeCh)
	})

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for i := range h.queues {
		h.queues[i] = endpointQueue{}
	}
	h.initDone = false
	pkg.LogInfo(pkg.ComponentHAL, "loopback HAL stopped")
	return nil
}

// SetAddress implements hal.DeviceHAL.
func (h *HAL) SetAddress(address uint8) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.address = address
	return nil
}

// Address returns the programmed device address.
func (h *HAL) Address() uint8 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.address
}

// ConfigureEndpoints implements hal.DeviceHAL.
func (h *HAL) ConfigureEndpoints(endpoints []hal.EndpointConfig) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for i := range h.queues {
		h.queues[i] = endpointQueue{}
	}
	for _, ep := range endpoints {
		idx, err := queueIndex(ep.Address)
		if err != nil {
			return err
		}
		h.queues[idx].open = true
		h.queues[idx].config = ep
	}
	pkg.LogDebug(pkg.ComponentHAL, "loopback endpoints configured", "count", len(endpoints))
	return nil
}

// ReadSetup implements hal.DeviceHAL.
func (h *HAL) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closeCh:
		return pkg.ErrNoDevice
	case ev := <-h.events:
		if ev.err != nil {
			return ev.err
		}
		*out = ev.setup
		return nil
	}
}

// WriteEP0 implements hal.DeviceHAL.
func (h *HAL) WriteEP0(ctx context.Context, data []byte) error {
	return h.respond(ctx, controlResponse{data: append([]byte(nil), data...)})
}

// ReadEP0 implements hal.DeviceHAL.
func (h *HAL) ReadEP0(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case data := <-h.ep0Out:
		return copy(buf, data), nil
	}
}

// StallEP0 implements hal.DeviceHAL.
func (h *HAL) StallEP0() error {
	return h.respond(context.Background(), controlResponse{stalled: true})
}

// AckEP0 implements hal.DeviceHAL.
func (h *HAL) AckEP0() error {
	return h.respond(context.Background(), controlResponse{})
}

func (h *HAL) respond(ctx context.Context, r controlResponse) error {
	select {
	case h.responses <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(h.controlTimeout):
		return pkg.ErrTimeout
	}
}

// Available implements hal.DeviceHAL.
func (h *HAL) Available(address uint8) int {
	idx, err := queueIndex(address)
	if err != nil {
		return 0
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.queues[idx].size
}

// Read implements hal.DeviceHAL. It consumes up to len(buf) queued OUT
// bytes without blocking.
func (h *HAL) Read(ctx context.Context, address uint8, buf []byte) (int, error) {
	idx, err := queueIndex(address)
	if err != nil {
		return 0, err
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()

	q := &h.queues[idx]
	if !q.open {
		return 0, pkg.ErrInvalidEndpoint
	}
	return q.drain(buf), nil
}

// Write implements hal.DeviceHAL. The packet is queued for ReadIn; when the
// queue is full the oldest packets are dropped, as a host that stopped
// polling would miss isochronous frames.
func (h *HAL) Write(ctx context.Context, address uint8, data []byte) (int, error) {
	idx, err := queueIndex(address)
	if err != nil {
		return 0, err
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()

	q := &h.queues[idx]
	if !q.open {
		return 0, pkg.ErrInvalidEndpoint
	}
	q.push(data, h.queueLimit)
	return len(data), nil
}

// IsConnected implements hal.DeviceHAL.
func (h *HAL) IsConnected() bool {
	return atomic.LoadUint32(&h.connected) == 1
}

// GetSpeed implements hal.DeviceHAL.
func (h *HAL) GetSpeed() hal.Speed {
	return h.speed
}

// WaitConnect implements hal.DeviceHAL.
func (h *HAL) WaitConnect(ctx context.Context) error {
	if h.IsConnected() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.connectCh:
		return nil
	case <-h.closeCh:
		return pkg.ErrNoDevice
	}
}

func (q *endpointQueue) push(data []byte, limit int) {
	if len(data) == 0 {
		return
	}
	q.packets = append(q.packets, append([]byte(nil), data...))
	q.size += len(data)
	for q.size > limit && len(q.packets) > 1 {
		q.size -= len(q.packets[0])
		q.dropped += len(q.packets[0])
		q.packets = q.packets[1:]
	}
}

func (q *endpointQueue) drain(buf []byte) int {
	n := 0
	for n < len(buf) && len(q.packets) > 0 {
		c := copy(buf[n:], q.packets[0])
		n += c
		q.size -= c
		if c == len(q.packets[0]) {
			q.packets = q.packets[1:]
		} else {
			q.packets[0] = q.packets[0][c:]
		}
	}
	return n
}

// Host side.

// Control performs a control transfer as the host would. The signature
// matches (*gousb.Device).Control, so host-side clients work against the
// loopback unchanged. A stalled request returns pkg.ErrStall.
func (h *HAL) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	h.controlMutex.Lock()
	defer h.controlMutex.Unlock()

	if !h.IsConnected() {
		return 0, pkg.ErrNoDevice
	}

	// Discard anything left by an abandoned transfer.
	select {
	case <-h.responses:
	default:
	}
	select {
	case <-h.ep0Out:
	default:
	}

	in := rType&0x80 != 0
	if !in && len(data) > 0 {
		h.ep0Out <- append([]byte(nil), data...)
	}

	ev := controlEvent{setup: hal.SetupPacket{
		RequestType: rType,
		Request:     request,
		Value:       val,
		Index:       idx,
		Length:      uint16(len(data)),
	}}
	timer := time.NewTimer(h.controlTimeout)
	defer timer.Stop()

	select {
	case h.events <- ev:
	case <-timer.C:
		return 0, pkg.ErrTimeout
	}

	select {
	case r := <-h.responses:
		if r.stalled {
			return 0, fmt.Errorf("control request 0x%02X: %w", request, pkg.ErrStall)
		}
		if in {
			return copy(data, r.data), nil
		}
		return len(data), nil
	case <-timer.C:
		return 0, pkg.ErrTimeout
	}
}

func (h *HAL) busEvent(err error) {
	select {
	case h.events <- controlEvent{err: err}:
	case <-h.closeCh:
	}
}

// BusReset signals a bus reset to the device.
func (h *HAL) BusReset() { h.busEvent(pkg.ErrReset) }

// Suspend signals a bus suspend to the device.
func (h *HAL) Suspend() { h.busEvent(pkg.ErrSuspend) }

// Resume signals a bus resume to the device.
func (h *HAL) Resume() { h.busEvent(pkg.ErrResume) }

// Unplug signals a host disconnect to the device.
func (h *HAL) Unplug() { h.busEvent(pkg.ErrNoDevice) }

// WriteOut queues data on an OUT endpoint as the host would.
func (h *HAL) WriteOut(address uint8, data []byte) (int, error) {
	idx, err := queueIndex(address &^ 0x80)
	if err != nil {
		return 0, err
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()

	q := &h.queues[idx]
	if !q.open {
		return 0, pkg.ErrInvalidEndpoint
	}
	q.push(data, h.queueLimit)
	return len(data), nil
}

// ReadIn dequeues up to len(buf) bytes from an IN endpoint as the host
// would. It never blocks.
func (h *HAL) ReadIn(address uint8, buf []byte) (int, error) {
	idx, err := queueIndex(address | 0x80)
	if err != nil {
		return 0, err
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()

	q := &h.queues[idx]
	if !q.open {
		return 0, pkg.ErrInvalidEndpoint
	}
	return q.drain(buf), nil
}

// Dropped returns the number of bytes discarded from an endpoint queue.
func (h *HAL) Dropped(address uint8) int {
	idx, err := queueIndex(address)
	if err != nil {
		return 0
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.queues[idx].dropped
}

// Compile-time interface check.
var _ hal.DeviceHAL = (*HAL)(nil)
