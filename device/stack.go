package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/pkg"
)

// IsochronousFrame is the service interval of ServeIsochronousIn.
const IsochronousFrame = time.Millisecond

// IsoInHandler supplies the payload of an isochronous IN endpoint.
//
// Every frame the stack calls PreLoad and transmits the returned bytes,
// then calls PostLoad with the number of bytes actually sent so the handler
// can stage the next frame.
type IsoInHandler interface {
	PreLoad() []byte
	PostLoad(sent int)
}

// Stack runs the control endpoint and exposes the data endpoints.
type Stack struct {
	device  *Device
	hal     hal.DeviceHAL
	handler *StandardRequestHandler

	running bool
	mutex   sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Reusable buffers owned by the control loop.
	setupBuf   hal.SetupPacket
	ep0ReadBuf [MaxControlDataSize]byte

	onBusEvent func(BusEvent)
}

// NewStack creates a device stack for dev on h.
func NewStack(dev *Device, h hal.DeviceHAL) *Stack {
	return &Stack{
		device:  dev,
		hal:     h,
		handler: NewStandardRequestHandler(dev),
	}
}

// Start initializes the controller, attaches to the bus and starts the
// control loop.
func (s *Stack) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mutex.Unlock()

	if err := s.hal.Init(s.ctx); err != nil {
		return err
	}
	if err := s.hal.Start(); err != nil {
		return err
	}

	s.mutex.Lock()
	s.running = true
	s.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentStack, "device stack started")
	go s.controlLoop()
	return nil
}

// Stop ends the control loop and detaches from the bus.
func (s *Stack) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mutex.Unlock()

	<-done
	if err := s.hal.Stop(); err != nil {
		return err
	}
	pkg.LogDebug(pkg.ComponentStack, "device stack stopped")
	return nil
}

// IsRunning returns true if the stack is running.
func (s *Stack) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Device returns the underlying device.
func (s *Stack) Device() *Device {
	return s.device
}

// SetOnBusEvent sets the bus event listener. It is called from the control
// loop and must not block.
func (s *Stack) SetOnBusEvent(cb func(BusEvent)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onBusEvent = cb
}

func (s *Stack) emit(ev BusEvent) {
	s.mutex.RLock()
	cb := s.onBusEvent
	s.mutex.RUnlock()

	pkg.LogDebug(pkg.ComponentStack, "bus event", "event", ev.String())
	if cb != nil {
		cb(ev)
	}
}

func (s *Stack) controlLoop() {
	defer close(s.done)

	for {
		if err := s.hal.ReadSetup(s.ctx, &s.setupBuf); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.handleBusError(err)
			continue
		}

		var setup SetupPacket
		setup.fromHAL(&s.setupBuf)

		if err := s.handleSetup(&setup); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			pkg.LogDebug(pkg.ComponentStack, "request stalled",
				"error", err,
				"request", setup.String())
			if err := s.hal.StallEP0(); err != nil {
				pkg.LogWarn(pkg.ComponentStack, "stall failed", "error", err)
			}
		}
	}
}

func (s *Stack) handleBusError(err error) {
	switch {
	case errors.Is(err, pkg.ErrReset):
		wasConfigured := s.device.IsConfigured()
		s.device.Reset()
		s.closeEndpoints()
		if wasConfigured {
			s.emit(BusEventUnmount)
		}
	case errors.Is(err, pkg.ErrNoDevice):
		s.device.Reset()
		s.closeEndpoints()
		s.emit(BusEventUnmount)
	case errors.Is(err, pkg.ErrSuspend):
		s.device.Suspend()
		s.emit(BusEventSuspend)
	case errors.Is(err, pkg.ErrResume):
		s.device.Resume()
		s.emit(BusEventResume)
	default:
		pkg.LogWarn(pkg.ComponentStack, "error reading setup", "error", err)
	}
}

// handleSetup runs one control transfer. The OUT data stage is received
// before dispatch so class drivers see the payload.
func (s *Stack) handleSetup(setup *SetupPacket) error {
	pkg.LogDebug(pkg.ComponentStack, "setup received", "request", setup.String())

	var data []byte
	if !setup.IsDeviceToHost() && setup.Length > 0 {
		if int(setup.Length) > MaxControlDataSize {
			return pkg.ErrBufferTooSmall
		}
		n, err := s.hal.ReadEP0(s.ctx, s.ep0ReadBuf[:setup.Length])
		if err != nil {
			return err
		}
		data = s.ep0ReadBuf[:n]
	}

	if setup.IsStandard() {
		resp, err := s.handler.HandleSetup(setup)
		if err != nil {
			return err
		}
		if err := s.completeSetup(setup, resp); err != nil {
			return err
		}
		s.afterStandard(setup)
		return nil
	}

	if setup.IsClass() && setup.IsInterfaceRecipient() {
		iface := s.device.GetInterface(setup.InterfaceNumber())
		if iface == nil {
			return pkg.ErrInvalidRequest
		}
		resp, handled, err := iface.HandleSetup(setup, data)
		if err != nil {
			return err
		}
		if !handled {
			return pkg.ErrNotSupported
		}
		return s.completeSetup(setup, resp)
	}

	return pkg.ErrInvalidRequest
}

// completeSetup sends the IN data stage, truncated to wLength, and runs the
// status stage.
func (s *Stack) completeSetup(setup *SetupPacket, data []byte) error {
	if setup.IsDeviceToHost() {
		if len(data) > int(setup.Length) {
			data = data[:setup.Length]
		}
		if err := s.hal.WriteEP0(s.ctx, data); err != nil {
			return err
		}
		_, err := s.hal.ReadEP0(s.ctx, s.ep0ReadBuf[:0])
		return err
	}
	return s.hal.AckEP0()
}

// afterStandard applies the hardware side effects of a completed request.
func (s *Stack) afterStandard(setup *SetupPacket) {
	if setup.Recipient() != RequestRecipientDevice {
		return
	}
	switch setup.Request {
	case RequestSetAddress:
		if err := s.hal.SetAddress(s.device.Address()); err != nil {
			pkg.LogWarn(pkg.ComponentStack, "set address failed", "error", err)
		}
	case RequestSetConfiguration:
		if s.device.IsConfigured() {
			if err := s.hal.ConfigureEndpoints(s.device.EndpointConfigs()); err != nil {
				pkg.LogWarn(pkg.ComponentStack, "configure endpoints failed", "error", err)
			}
			s.emit(BusEventMount)
			return
		}
		s.closeEndpoints()
		s.emit(BusEventUnmount)
	}
}

func (s *Stack) closeEndpoints() {
	if err := s.hal.ConfigureEndpoints(nil); err != nil {
		pkg.LogWarn(pkg.ComponentStack, "close endpoints failed", "error", err)
	}
}

// IsConnected returns true if a host is attached.
func (s *Stack) IsConnected() bool {
	return s.hal.IsConnected()
}

// WaitConnect blocks until a host attaches or ctx is cancelled.
func (s *Stack) WaitConnect(ctx context.Context) error {
	return s.hal.WaitConnect(ctx)
}

// Available returns the bytes waiting on an OUT endpoint, or 0 when the
// device is not configured.
func (s *Stack) Available(address uint8) int {
	if !s.device.IsConfigured() {
		return 0
	}
	return s.hal.Available(address)
}

// Read reads from an OUT endpoint.
func (s *Stack) Read(ctx context.Context, address uint8, buf []byte) (int, error) {
	if !s.device.IsConfigured() {
		return 0, pkg.ErrNotConfigured
	}
	return s.hal.Read(ctx, address, buf)
}

// Write writes to an IN endpoint.
func (s *Stack) Write(ctx context.Context, address uint8, data []byte) (int, error) {
	if !s.device.IsConfigured() {
		return 0, pkg.ErrNotConfigured
	}
	return s.hal.Write(ctx, address, data)
}

// ServeIsochronousIn services an isochronous IN endpoint once per frame
// until ctx is cancelled.
func (s *Stack) ServeIsochronousIn(ctx context.Context, address uint8, h IsoInHandler) error {
	ticker := time.NewTicker(IsochronousFrame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !s.device.IsConfigured() {
			continue
		}

		sent := 0
		if frame := h.PreLoad(); len(frame) > 0 {
			n, err := s.hal.Write(ctx, address, frame)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				pkg.LogWarn(pkg.ComponentStack, "isochronous write failed",
					"endpoint", address,
					"error", err)
			}
			sent = n
		}
		h.PostLoad(sent)
	}
}
