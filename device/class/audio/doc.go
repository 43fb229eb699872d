// Package audio implements the USB Audio Class 2.0 headset function: a
// speaker stream from the host to an I2S codec and a microphone stream
// from the codec to the host.
//
// # Topology
//
// The function has three interfaces and seven entities:
//
//	Interface 0  audio control
//	Interface 1  speaker streaming, isochronous OUT 0x01
//	Interface 2  mic streaming, isochronous IN 0x81
//
//	Clock source            0x04
//	Speaker IT -> FU -> OT  0x01 -> 0x02 -> 0x03
//	Mic IT -> FU -> OT      0x11 -> 0x12 -> 0x13
//
// The clock runs at one of 16000, 24000, 32000 or 44100 Hz and drives
// both directions and the I2S link. There is no sample rate conversion.
//
// # Components
//
//   - [DeviceState] holds the rate, formats, gains and stream activity;
//     the control path writes it and the data path reads snapshots
//   - [ControlHandler] executes clock, feature unit and terminal requests
//   - [Lifecycle] opens and closes streams on SET_INTERFACE and bus events
//     and reports a [StatusMode]
//   - [Transport] owns the I2S channels, one millisecond per DMA buffer
//   - [Bridge] pumps speaker data to the transport and stages mic frames
//     from a [Producer]
//   - [OffsetFilter] removes the mic front end's DC bias
//
// [Headset] ties them together as a device.ClassDriver.
//
// # Gain
//
// Volumes are 1/256 dB and quantized to 2 dB steps. The linear gain of a
// channel is the product of the master and channel table entries, or zero
// when either is muted. Samples are scaled with saturation.
//
// With mic.host_volume_offset enabled the mic master volume is raised by
// a fixed amount (20 dB by default) before the table lookup. Some host
// drivers refuse to set a volume above 0 dB even when the advertised range
// allows it; the offset restores the upper part of the range. GET_CUR
// reports the volume the host set.
//
// # Example
//
//	headset, err := audio.New(cfg, codec)
//	if err != nil {
//	    return err
//	}
//	builder := device.NewDeviceBuilder(descriptors)
//	headset.ConfigureDevice(builder)
//	dev, err := builder.Build()
//	if err != nil {
//	    return err
//	}
//	if err := headset.Attach(dev); err != nil {
//	    return err
//	}
//	stack := device.NewStack(dev, usb)
//	headset.SetStack(stack)
//	if err := stack.Start(ctx); err != nil {
//	    return err
//	}
//	return headset.Run(ctx)
package audio
