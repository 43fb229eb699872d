// Package device implements the USB device framework under the headset.
//
// It is platform-agnostic and talks to hardware through [hal.DeviceHAL]
// from [github.com/ardnew/usbheadset/device/hal]. The framework covers what
// an isochronous audio function needs and nothing more: enumeration,
// alternate setting selection, class control requests with data stages,
// bus events and a frame-paced isochronous IN service.
//
// # Architecture
//
//   - [Device] holds the device state, the single configuration and its
//     interfaces
//   - [Interface] groups endpoints and forwards requests to a [ClassDriver]
//   - [Endpoint] describes a data endpoint and its halt state
//   - [StandardRequestHandler] answers chapter 9 requests
//   - [Stack] runs the EP0 control loop and exposes the data endpoints
//
// Descriptors are not built here. A [DescriptorSource] (for instance a
// [DescriptorTable]) supplies the encoded tables for GET_DESCRIPTOR.
//
// # Control Transfers
//
// For host-to-device requests the stack receives the data stage before
// dispatching, so a class driver sees the payload in HandleSetup. For
// device-to-host requests the response is truncated to wLength. Requests
// nobody handles are stalled.
//
// # Bus Events
//
// The stack reports [BusEventMount] when the host selects the configuration,
// [BusEventUnmount] when it is lost, and [BusEventSuspend]/[BusEventResume]
// around suspend periods:
//
//	stack.SetOnBusEvent(func(ev device.BusEvent) {
//	    headset.HandleBusEvent(ev)
//	})
//
// # Zero-Allocation Design
//
// Endpoints, interfaces and descriptors live in fixed-size arrays. The
// control loop reuses its SETUP and data stage buffers, and
// [StandardRequestHandler] answers from a preallocated response buffer.
//
// # Example
//
//	var table device.DescriptorTable
//	table.Set(device.DescriptorTypeDevice, 0, deviceDesc)
//	table.Set(device.DescriptorTypeConfiguration, 0, configDesc)
//
//	builder := device.NewDeviceBuilder(&table)
//	headset.ConfigureDevice(builder)
//	dev, err := builder.Build()
//	if err != nil {
//	    return err
//	}
//	stack := device.NewStack(dev, hal)
//	return stack.Start(ctx)
package device
