package device

import (
	"encoding/binary"

	"github.com/ardnew/usbheadset/pkg"
)

// MaxDescriptorResponseSize is the size of the descriptor response buffer.
const MaxDescriptorResponseSize = 512

// StandardRequestHandler answers the standard requests the headset needs.
type StandardRequestHandler struct {
	device *Device

	// The slice returned by HandleSetup references this buffer.
	responseBuf [MaxDescriptorResponseSize]byte
}

// NewStandardRequestHandler creates a handler for dev.
func NewStandardRequestHandler(dev *Device) *StandardRequestHandler {
	return &StandardRequestHandler{device: dev}
}

// HandleSetup processes a standard request and returns the IN response, if
// any. An error stalls the request.
func (h *StandardRequestHandler) HandleSetup(setup *SetupPacket) ([]byte, error) {
	if !setup.IsStandard() {
		return nil, pkg.ErrInvalidRequest
	}

	switch setup.Recipient() {
	case RequestRecipientDevice:
		return h.handleDeviceRequest(setup)
	case RequestRecipientInterface:
		return h.handleInterfaceRequest(setup)
	case RequestRecipientEndpoint:
		return h.handleEndpointRequest(setup)
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *StandardRequestHandler) handleDeviceRequest(setup *SetupPacket) ([]byte, error) {
	switch setup.Request {
	case RequestGetStatus:
		return h.status(uint16(h.device.GetStatus()))
	case RequestClearFeature, RequestSetFeature:
		if setup.Value != FeatureDeviceRemoteWakeup {
			return nil, pkg.ErrNotSupported
		}
		h.device.EnableRemoteWakeup(setup.Request == RequestSetFeature)
		return nil, nil
	case RequestSetAddress:
		return nil, h.device.SetAddress(uint8(setup.Value & 0x7F))
	case RequestGetDescriptor:
		return h.getDescriptor(setup)
	case RequestGetConfiguration:
		h.responseBuf[0] = h.device.Configuration()
		return h.responseBuf[:1], nil
	case RequestSetConfiguration:
		return nil, h.device.SetConfiguration(uint8(setup.Value))
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *StandardRequestHandler) handleInterfaceRequest(setup *SetupPacket) ([]byte, error) {
	if !h.device.IsConfigured() {
		return nil, pkg.ErrNotConfigured
	}
	iface := h.device.GetInterface(setup.InterfaceNumber())
	if iface == nil {
		return nil, pkg.ErrInvalidRequest
	}

	switch setup.Request {
	case RequestGetStatus:
		return h.status(0)
	case RequestGetInterface:
		h.responseBuf[0] = iface.Alternate()
		return h.responseBuf[:1], nil
	case RequestSetInterface:
		return nil, iface.SetAlternate(uint8(setup.Value))
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *StandardRequestHandler) handleEndpointRequest(setup *SetupPacket) ([]byte, error) {
	ep := h.device.GetEndpoint(setup.EndpointAddress())
	if ep == nil {
		// EP0 can never be halted by the host.
		if setup.EndpointAddress()&0x0F == 0 && setup.Request == RequestGetStatus {
			return h.status(0)
		}
		return nil, pkg.ErrInvalidEndpoint
	}

	switch setup.Request {
	case RequestGetStatus:
		var status uint16
		if ep.IsStalled() {
			status = 1
		}
		return h.status(status)
	case RequestClearFeature, RequestSetFeature:
		if setup.Value != FeatureEndpointHalt {
			return nil, pkg.ErrInvalidRequest
		}
		ep.SetStall(setup.Request == RequestSetFeature)
		return nil, nil
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *StandardRequestHandler) status(v uint16) ([]byte, error) {
	binary.LittleEndian.PutUint16(h.responseBuf[:2], v)
	return h.responseBuf[:2], nil
}

func (h *StandardRequestHandler) getDescriptor(setup *SetupPacket) ([]byte, error) {
	data := h.device.Descriptor(setup.DescriptorType(), setup.DescriptorIndex())
	if data == nil {
		return nil, pkg.ErrNotSupported
	}
	n := copy(h.responseBuf[:], data)
	if n < len(data) {
		return nil, pkg.ErrBufferTooSmall
	}
	return h.responseBuf[:n], nil
}
