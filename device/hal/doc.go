// Package hal defines the hardware contracts of the headset device core.
//
// Two peripherals are abstracted:
//
//   - [DeviceHAL]: the USB device controller (EP0 control transfers, data
//     endpoints, bus events)
//   - [I2SPort]: the I2S channel pair connected to the audio codec
//
// The device stack and the audio class driver implement all protocol logic.
// A HAL only moves bytes and reports events, so porting the headset to a
// new board means implementing these two interfaces.
//
// # Zero-Allocation Design
//
// HAL implementations should avoid allocations in Read and Write. The stack
// passes reusable buffers and expects them to be filled in place.
//
// # Example
//
//	type boardI2S struct{ /* peripheral registers */ }
//
//	func (p *boardI2S) Open(cfg hal.I2SConfig) error {
//	    // program clock dividers for cfg.SampleRate, allocate DMA
//	    return nil
//	}
//
//	// ... implement remaining I2SPort methods
//
// An in-memory implementation of both contracts is available in
// [github.com/ardnew/usbheadset/device/hal/loopback].
package hal
