package pkg

import "errors"

// USB protocol errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrOverrun indicates a data overrun condition.
	ErrOverrun = errors.New("data overrun")

	// ErrUnderrun indicates a data underrun condition.
	ErrUnderrun = errors.New("data underrun")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrNotConfigured indicates the device is not configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrNoMemory indicates a fixed-size table is full.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrAlreadyRunning indicates the stack is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrInvalidState indicates an operation not permitted in the current
	// device state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")

	// ErrSuspend indicates the bus entered the suspended state.
	ErrSuspend = errors.New("bus suspended")

	// ErrResume indicates the bus resumed from suspend.
	ErrResume = errors.New("bus resumed")
)

// Audio class and transport errors.
var (
	// ErrUnsupportedRate indicates a sample rate outside the supported set.
	ErrUnsupportedRate = errors.New("unsupported sample rate")

	// ErrPayloadLength indicates a control payload whose length does not
	// match the fixed layout of the addressed control.
	ErrPayloadLength = errors.New("control payload length mismatch")

	// ErrUnknownEntity indicates a control request for an entity the
	// headset does not implement.
	ErrUnknownEntity = errors.New("unknown audio entity")

	// ErrUnknownControl indicates a control selector or request code that
	// the addressed entity does not implement.
	ErrUnknownControl = errors.New("unknown audio control")

	// ErrInvalidChannel indicates a channel number outside master/left/right.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrInvalidAlternate indicates an alternate setting with no format.
	ErrInvalidAlternate = errors.New("invalid alternate setting")

	// ErrMisaligned indicates a byte count that is not a whole number of
	// audio frames.
	ErrMisaligned = errors.New("misaligned audio frame")

	// ErrShortTransfer indicates fewer bytes moved than requested.
	ErrShortTransfer = errors.New("short transfer")

	// ErrTransportClosed indicates I2S channels are not open.
	ErrTransportClosed = errors.New("i2s transport closed")
)
