// Package loopback implements the headset HAL contracts in memory.
//
// [HAL] is a [hal.DeviceHAL] whose host side is driven by method calls
// instead of a bus. [Codec] is a [hal.I2SPort] that records what the
// speaker path plays and feeds the microphone path from a queue or a
// generator function. Together they let the complete device run on a
// workstation and in tests.
//
// # Host Side
//
// The host half of the bus is exposed directly on [HAL]:
//
//   - [HAL.Control] performs a control transfer. It has the same signature
//     as (*gousb.Device).Control so host clients are transport agnostic.
//   - [HAL.WriteOut] queues isochronous OUT data for the device to read.
//   - [HAL.ReadIn] collects what the device wrote to an IN endpoint.
//   - [HAL.BusReset], [HAL.Suspend], [HAL.Resume] and [HAL.Unplug] inject
//     bus events.
//
// Endpoint queues are bounded. When the host stops collecting IN data the
// oldest packets are dropped, as on a real bus where missed isochronous
// frames are lost.
//
// # Usage
//
//	usb := loopback.New()
//	codec := loopback.NewCodec()
//
//	headset, _ := audio.New(cfg, codec)
//	builder := device.NewDeviceBuilder(descriptors)
//	headset.ConfigureDevice(builder)
//	dev, _ := builder.Build()
//	headset.Attach(dev)
//
//	stack := device.NewStack(dev, usb)
//	stack.Start(ctx)
//
//	// Act as the host.
//	client := host.NewClient(usb)
//	client.SetSampleRate(32000)
//
// A HAL instance cannot be restarted after Stop.
package loopback
