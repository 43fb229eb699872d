package device

import (
	"fmt"
	"sync"

	"github.com/ardnew/usbheadset/pkg"
)

// ClassDriver implements class-specific behavior for one or more interfaces.
type ClassDriver interface {
	// Init is called when the driver is attached to iface.
	Init(iface *Interface) error

	// HandleSetup processes a class request addressed to iface. For OUT
	// requests data holds the received data stage. For IN requests the
	// returned slice is the response; the stack truncates it to wLength.
	// Returning false stalls the request.
	HandleSetup(iface *Interface, setup *SetupPacket, data []byte) ([]byte, bool, error)

	// SetAlternate is called on SET_INTERFACE. A non-nil error stalls the
	// request and leaves the previous alternate setting in place.
	SetAlternate(iface *Interface, alt uint8) error

	// Close releases resources held by the driver.
	Close() error
}

// Interface is a USB interface with its endpoints and class driver.
type Interface struct {
	Number           uint8 // bInterfaceNumber
	AlternateSetting uint8 // Current alternate setting
	Class            uint8 // bInterfaceClass
	SubClass         uint8 // bInterfaceSubClass
	Protocol         uint8 // bInterfaceProtocol

	endpoints     [MaxEndpointsPerInterface]*Endpoint
	endpointCount int
	classDriver   ClassDriver
	mutex         sync.RWMutex
}

// AddEndpoint adds an endpoint to the interface.
func (i *Interface) AddEndpoint(ep *Endpoint) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	if i.endpointCount >= MaxEndpointsPerInterface {
		return pkg.ErrNoMemory
	}
	for idx := 0; idx < i.endpointCount; idx++ {
		if i.endpoints[idx].Address == ep.Address {
			return pkg.ErrBusy
		}
	}

	i.endpoints[i.endpointCount] = ep
	i.endpointCount++

	pkg.LogDebug(pkg.ComponentStack, "endpoint added to interface",
		"interface", i.Number,
		"endpoint", fmt.Sprintf("0x%02X", ep.Address),
		"type", TransferTypeName(ep.TransferType()))
	return nil
}

// GetEndpoint returns the endpoint with the given address, or nil.
func (i *Interface) GetEndpoint(address uint8) *Endpoint {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	for idx := 0; idx < i.endpointCount; idx++ {
		if i.endpoints[idx].Address == address {
			return i.endpoints[idx]
		}
	}
	return nil
}

// Endpoints returns the interface endpoints.
// The returned slice references internal storage; do not modify.
func (i *Interface) Endpoints() []*Endpoint {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.endpoints[:i.endpointCount]
}

// FirstEndpoint returns the first endpoint whose direction matches in, or
// nil.
func (i *Interface) FirstEndpoint(in bool) *Endpoint {
	for _, ep := range i.Endpoints() {
		if ep.IsIn() == in {
			return ep
		}
	}
	return nil
}

// SetClassDriver attaches driver to the interface and initializes it.
// A previously attached driver is not closed, since one driver may serve
// several interfaces.
func (i *Interface) SetClassDriver(driver ClassDriver) error {
	i.mutex.Lock()
	i.classDriver = driver
	i.mutex.Unlock()

	// Init runs outside the lock so the driver may call back into i.
	if driver != nil {
		return driver.Init(i)
	}
	return nil
}

// ClassDriver returns the attached class driver.
func (i *Interface) ClassDriver() ClassDriver {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.classDriver
}

// HandleSetup forwards a class request to the attached driver.
func (i *Interface) HandleSetup(setup *SetupPacket, data []byte) ([]byte, bool, error) {
	driver := i.ClassDriver()
	if driver == nil {
		return nil, false, nil
	}
	return driver.HandleSetup(i, setup, data)
}

// SetAlternate selects an alternate setting. The driver is consulted first;
// the setting only changes if it accepts.
func (i *Interface) SetAlternate(alt uint8) error {
	driver := i.ClassDriver()
	if driver != nil {
		if err := driver.SetAlternate(i, alt); err != nil {
			return err
		}
	} else if alt != 0 {
		return pkg.ErrInvalidAlternate
	}

	i.mutex.Lock()
	i.AlternateSetting = alt
	i.mutex.Unlock()
	return nil
}

// Alternate returns the current alternate setting.
func (i *Interface) Alternate() uint8 {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.AlternateSetting
}

// Close detaches and closes the class driver.
func (i *Interface) Close() error {
	i.mutex.Lock()
	driver := i.classDriver
	i.classDriver = nil
	i.AlternateSetting = 0
	i.mutex.Unlock()

	if driver != nil {
		return driver.Close()
	}
	return nil
}
