package device

import (
	"sync"

	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/pkg"
)

// DescriptorSource supplies the encoded descriptors the device reports on
// GET_DESCRIPTOR. The stack never builds descriptors itself.
type DescriptorSource interface {
	// Descriptor returns the descriptor of the given type and index, or
	// nil if there is none.
	Descriptor(descType, index uint8) []byte
}

// DescriptorTable is a fixed-size DescriptorSource.
type DescriptorTable struct {
	entries [MaxDescriptors]descriptorEntry
	count   int
	mutex   sync.RWMutex
}

type descriptorEntry struct {
	descType uint8
	index    uint8
	data     []byte
}

// Set stores data for (descType, index). The slice is stored by reference.
func (t *DescriptorTable) Set(descType, index uint8, data []byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for i := 0; i < t.count; i++ {
		if t.entries[i].descType == descType && t.entries[i].index == index {
			t.entries[i].data = data
			return nil
		}
	}
	if t.count >= MaxDescriptors {
		return pkg.ErrNoMemory
	}
	t.entries[t.count] = descriptorEntry{descType: descType, index: index, data: data}
	t.count++
	return nil
}

// Descriptor implements DescriptorSource.
func (t *DescriptorTable) Descriptor(descType, index uint8) []byte {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	for i := 0; i < t.count; i++ {
		if t.entries[i].descType == descType && t.entries[i].index == index {
			return t.entries[i].data
		}
	}
	return nil
}

// DeviceStatus represents the GET_STATUS device bits.
type DeviceStatus uint16

// Device status bits.
const (
	DeviceStatusSelfPowered  DeviceStatus = 1 << 0
	DeviceStatusRemoteWakeup DeviceStatus = 1 << 1
)

// ConfigurationValue is the bConfigurationValue of the single configuration.
const ConfigurationValue = 1

// Device holds the device state and its interfaces.
type Device struct {
	descriptors DescriptorSource

	interfaces     [MaxInterfaces]*Interface
	interfaceCount int

	state         State
	previousState State
	address       uint8
	configuration uint8

	selfPowered         bool
	remoteWakeupEnabled bool

	mutex sync.RWMutex

	onStateChange func(old, new State)
}

// NewDevice creates a device that answers GET_DESCRIPTOR from descriptors.
func NewDevice(descriptors DescriptorSource) *Device {
	return &Device{
		descriptors: descriptors,
		state:       StateAttached,
	}
}

// AddInterface adds an interface to the configuration.
func (d *Device) AddInterface(iface *Interface) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.interfaceCount >= MaxInterfaces {
		return pkg.ErrNoMemory
	}
	for idx := 0; idx < d.interfaceCount; idx++ {
		if d.interfaces[idx].Number == iface.Number {
			return pkg.ErrBusy
		}
	}

	d.interfaces[d.interfaceCount] = iface
	d.interfaceCount++

	pkg.LogDebug(pkg.ComponentStack, "interface added",
		"interface", iface.Number,
		"class", iface.Class,
		"subclass", iface.SubClass)
	return nil
}

// GetInterface returns the interface with the given number, or nil.
func (d *Device) GetInterface(number uint8) *Interface {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	for idx := 0; idx < d.interfaceCount; idx++ {
		if d.interfaces[idx].Number == number {
			return d.interfaces[idx]
		}
	}
	return nil
}

// Interfaces returns all interfaces.
// The returned slice references internal storage; do not modify.
func (d *Device) Interfaces() []*Interface {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.interfaces[:d.interfaceCount]
}

// GetEndpoint returns the data endpoint with the given address, or nil.
func (d *Device) GetEndpoint(address uint8) *Endpoint {
	for _, iface := range d.Interfaces() {
		if ep := iface.GetEndpoint(address); ep != nil {
			return ep
		}
	}
	return nil
}

// EndpointConfigs returns the HAL description of every data endpoint.
func (d *Device) EndpointConfigs() []hal.EndpointConfig {
	var cfgs []hal.EndpointConfig
	for _, iface := range d.Interfaces() {
		for _, ep := range iface.Endpoints() {
			cfgs = append(cfgs, ep.Config())
		}
	}
	return cfgs
}

// Descriptor returns the descriptor for GET_DESCRIPTOR, or nil.
func (d *Device) Descriptor(descType, index uint8) []byte {
	if d.descriptors == nil {
		return nil
	}
	return d.descriptors.Descriptor(descType, index)
}

// State returns the current device state.
func (d *Device) State() State {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.state
}

func (d *Device) setState(newState State) {
	d.mutex.Lock()
	oldState := d.state
	d.state = newState
	callback := d.onStateChange
	d.mutex.Unlock()

	if oldState != newState {
		pkg.LogDebug(pkg.ComponentStack, "device state changed",
			"from", oldState.String(),
			"to", newState.String())
		if callback != nil {
			callback(oldState, newState)
		}
	}
}

// Address returns the device address.
func (d *Device) Address() uint8 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.address
}

// Configuration returns the active configuration value (0 if unconfigured).
func (d *Device) Configuration() uint8 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.configuration
}

// IsConfigured returns true if the device is configured.
func (d *Device) IsConfigured() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.state == StateConfigured
}

// Reset handles a bus reset. All interfaces return to alternate 0.
func (d *Device) Reset() {
	d.mutex.Lock()
	d.address = 0
	d.configuration = 0
	d.remoteWakeupEnabled = false
	d.mutex.Unlock()

	d.resetAlternates()
	d.setState(StateDefault)
}

// SetAddress handles SET_ADDRESS.
func (d *Device) SetAddress(address uint8) error {
	d.mutex.Lock()
	if d.state != StateDefault && d.state != StateAddress {
		d.mutex.Unlock()
		return pkg.ErrInvalidState
	}
	d.address = address
	d.mutex.Unlock()

	if address == 0 {
		d.setState(StateDefault)
	} else {
		d.setState(StateAddress)
	}
	return nil
}

// SetConfiguration handles SET_CONFIGURATION. Value 0 deconfigures.
func (d *Device) SetConfiguration(value uint8) error {
	d.mutex.Lock()
	if d.state != StateAddress && d.state != StateConfigured {
		d.mutex.Unlock()
		return pkg.ErrInvalidState
	}
	if value != 0 && value != ConfigurationValue {
		d.mutex.Unlock()
		return pkg.ErrInvalidRequest
	}
	d.configuration = value
	d.mutex.Unlock()

	d.resetAlternates()
	if value == 0 {
		d.setState(StateAddress)
	} else {
		d.setState(StateConfigured)
	}
	return nil
}

func (d *Device) resetAlternates() {
	for _, iface := range d.Interfaces() {
		iface.mutex.Lock()
		iface.AlternateSetting = 0
		iface.mutex.Unlock()
	}
}

// Suspend handles a bus suspend.
func (d *Device) Suspend() {
	d.mutex.Lock()
	if d.state == StateSuspended {
		d.mutex.Unlock()
		return
	}
	d.previousState = d.state
	d.mutex.Unlock()

	d.setState(StateSuspended)
}

// Resume handles a bus resume.
func (d *Device) Resume() {
	d.mutex.Lock()
	if d.state != StateSuspended {
		d.mutex.Unlock()
		return
	}
	previous := d.previousState
	d.mutex.Unlock()

	d.setState(previous)
}

// SetSelfPowered sets the self-powered status bit.
func (d *Device) SetSelfPowered(selfPowered bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.selfPowered = selfPowered
}

// EnableRemoteWakeup enables or disables remote wakeup.
func (d *Device) EnableRemoteWakeup(enabled bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.remoteWakeupEnabled = enabled
}

// GetStatus returns the GET_STATUS device bits.
func (d *Device) GetStatus() DeviceStatus {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var status DeviceStatus
	if d.selfPowered {
		status |= DeviceStatusSelfPowered
	}
	if d.remoteWakeupEnabled {
		status |= DeviceStatusRemoteWakeup
	}
	return status
}

// SetOnStateChange sets the state change callback.
func (d *Device) SetOnStateChange(cb func(old, new State)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onStateChange = cb
}

// Close closes every interface.
func (d *Device) Close() error {
	var lastErr error
	for _, iface := range d.Interfaces() {
		if err := iface.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// DeviceBuilder provides a fluent API for building devices.
type DeviceBuilder struct {
	device *Device
	iface  *Interface
	errors []error
}

// NewDeviceBuilder creates a builder for a device that answers
// GET_DESCRIPTOR from descriptors.
func NewDeviceBuilder(descriptors DescriptorSource) *DeviceBuilder {
	return &DeviceBuilder{device: NewDevice(descriptors)}
}

// AddInterface appends an interface numbered after the existing ones.
func (b *DeviceBuilder) AddInterface(class, subClass, protocol uint8) *DeviceBuilder {
	b.iface = &Interface{
		Number:   uint8(len(b.device.Interfaces())),
		Class:    class,
		SubClass: subClass,
		Protocol: protocol,
	}
	if err := b.device.AddInterface(b.iface); err != nil {
		b.errors = append(b.errors, err)
	}
	return b
}

// AddEndpoint adds an endpoint to the most recent interface.
func (b *DeviceBuilder) AddEndpoint(address, attributes uint8, maxPacketSize uint16) *DeviceBuilder {
	if b.iface == nil {
		b.errors = append(b.errors, pkg.ErrInvalidState)
		return b
	}
	ep := &Endpoint{
		Address:       address,
		Attributes:    attributes,
		MaxPacketSize: maxPacketSize,
		Interval:      1,
	}
	if err := b.iface.AddEndpoint(ep); err != nil {
		b.errors = append(b.errors, err)
	}
	return b
}

// Build returns the constructed device or the first error recorded.
func (b *DeviceBuilder) Build() (*Device, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	return b.device, nil
}
