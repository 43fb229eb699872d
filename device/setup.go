package device

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/pkg"
)

// Standard request codes.
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
)

// Feature selectors.
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
)

// bmRequestType fields.
const (
	RequestTypeDirectionMask = 0x80
	RequestTypeTypeMask      = 0x60
	RequestTypeRecipientMask = 0x1F

	RequestDirectionHostToDevice = 0x00
	RequestDirectionDeviceToHost = 0x80

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40

	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
)

// SetupPacketSize is the size of a SETUP packet in bytes.
const SetupPacketSize = 8

// SetupPacket is a decoded SETUP packet.
type SetupPacket struct {
	RequestType uint8  // bmRequestType
	Request     uint8  // bRequest
	Value       uint16 // wValue
	Index       uint16 // wIndex
	Length      uint16 // wLength
}

// ParseSetupPacket decodes 8 little-endian bytes into out.
func ParseSetupPacket(data []byte, out *SetupPacket) error {
	if len(data) < SetupPacketSize {
		return pkg.ErrSetupPacketTooShort
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Index = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

// MarshalTo encodes the packet into buf and returns 8, or 0 if buf is too
// small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

func (s *SetupPacket) fromHAL(p *hal.SetupPacket) {
	s.RequestType = p.RequestType
	s.Request = p.Request
	s.Value = p.Value
	s.Index = p.Index
	s.Length = p.Length
}

// IsDeviceToHost returns true for IN (device-to-host) requests.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.RequestType&RequestTypeDirectionMask == RequestDirectionDeviceToHost
}

// Type returns the request type bits.
func (s *SetupPacket) Type() uint8 {
	return s.RequestType & RequestTypeTypeMask
}

// IsStandard returns true for standard requests.
func (s *SetupPacket) IsStandard() bool {
	return s.Type() == RequestTypeStandard
}

// IsClass returns true for class-specific requests.
func (s *SetupPacket) IsClass() bool {
	return s.Type() == RequestTypeClass
}

// Recipient returns the recipient bits.
func (s *SetupPacket) Recipient() uint8 {
	return s.RequestType & RequestTypeRecipientMask
}

// IsInterfaceRecipient returns true if the recipient is an interface.
func (s *SetupPacket) IsInterfaceRecipient() bool {
	return s.Recipient() == RequestRecipientInterface
}

// DescriptorType returns the descriptor type of GET_DESCRIPTOR (wValue
// high byte).
func (s *SetupPacket) DescriptorType() uint8 {
	return uint8(s.Value >> 8)
}

// DescriptorIndex returns the descriptor index of GET_DESCRIPTOR (wValue
// low byte).
func (s *SetupPacket) DescriptorIndex() uint8 {
	return uint8(s.Value)
}

// InterfaceNumber returns the interface number (wIndex low byte).
func (s *SetupPacket) InterfaceNumber() uint8 {
	return uint8(s.Index)
}

// EndpointAddress returns the endpoint address (wIndex low byte).
func (s *SetupPacket) EndpointAddress() uint8 {
	return uint8(s.Index)
}

// Audio class requests address a control inside an entity:
//
//	wValue = control selector << 8 | channel number
//	wIndex = entity ID << 8 | interface number

// ControlSelector returns the class control selector (wValue high byte).
func (s *SetupPacket) ControlSelector() uint8 {
	return uint8(s.Value >> 8)
}

// ChannelNumber returns the class channel number (wValue low byte).
func (s *SetupPacket) ChannelNumber() uint8 {
	return uint8(s.Value)
}

// EntityID returns the class entity ID (wIndex high byte).
func (s *SetupPacket) EntityID() uint8 {
	return uint8(s.Index >> 8)
}

// String returns a human-readable representation of the setup packet.
func (s *SetupPacket) String() string {
	dir := "OUT"
	if s.IsDeviceToHost() {
		dir = "IN"
	}
	kind := "Standard"
	switch s.Type() {
	case RequestTypeClass:
		kind = "Class"
	case RequestTypeVendor:
		kind = "Vendor"
	}
	return fmt.Sprintf("SETUP[%s %s rcpt=%d] Request=0x%02X Value=0x%04X Index=0x%04X Length=%d",
		dir, kind, s.Recipient(), s.Request, s.Value, s.Index, s.Length)
}

// ClassInterfaceSetup initializes out as a class request addressed to
// entity on interface iface.
func ClassInterfaceSetup(out *SetupPacket, in bool, request, selector, channel, entity, iface uint8, length uint16) {
	out.RequestType = RequestTypeClass | RequestRecipientInterface
	if in {
		out.RequestType |= RequestDirectionDeviceToHost
	}
	out.Request = request
	out.Value = uint16(selector)<<8 | uint16(channel)
	out.Index = uint16(entity)<<8 | uint16(iface)
	out.Length = length
}

// SetInterfaceSetup initializes out as a SET_INTERFACE request.
func SetInterfaceSetup(out *SetupPacket, iface, alt uint8) {
	out.RequestType = RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientInterface
	out.Request = RequestSetInterface
	out.Value = uint16(alt)
	out.Index = uint16(iface)
	out.Length = 0
}

// SetConfigurationSetup initializes out as a SET_CONFIGURATION request.
func SetConfigurationSetup(out *SetupPacket, config uint8) {
	out.RequestType = RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientDevice
	out.Request = RequestSetConfiguration
	out.Value = uint16(config)
	out.Index = 0
	out.Length = 0
}

// GetDescriptorSetup initializes out as a GET_DESCRIPTOR request.
func GetDescriptorSetup(out *SetupPacket, descType, index uint8, length uint16) {
	out.RequestType = RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientDevice
	out.Request = RequestGetDescriptor
	out.Value = uint16(descType)<<8 | uint16(index)
	out.Index = 0
	out.Length = length
}
