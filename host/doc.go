// Package host drives the audio controls of a UAC2 headset from the host
// side of the bus.
//
// A [Client] issues class-specific control requests to the clock source and
// feature units of the audio control interface. It works over any
// [ControlDevice], the method set of (*gousb.Device).Control, so the same
// client runs against real hardware opened with [Open] and against the
// loopback HAL in tests.
//
// # Example
//
//	dev, err := host.Open(0x1209, 0x5201)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	if err := dev.SetSampleRate(32000); err != nil {
//	    log.Fatal(err)
//	}
//	vol, err := dev.Volume(audio.Mic, audio.ChannelMaster)
//
// Volumes are signed 1/256 dB steps, as carried on the wire.
package host
