//go:build cgo

package host

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/ardnew/usbheadset/device/class/audio"
	"github.com/ardnew/usbheadset/pkg"
)

// DefaultControlTimeout bounds each control transfer issued through libusb.
const DefaultControlTimeout = time.Second

// Device is a headset opened through libusb.
type Device struct {
	*Client

	ctx *gousb.Context
	dev *gousb.Device
}

// Open opens the first device matching vid:pid and returns a client bound
// to its audio control interface.
func Open(vid, pid uint16) (*Device, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("open %04x:%04x: %w", vid, pid, pkg.ErrNoDevice)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		pkg.LogDebug(pkg.ComponentHost, "auto detach unavailable", "error", err)
	}
	dev.ControlTimeout = DefaultControlTimeout

	pkg.LogInfo(pkg.ComponentHost, "device opened",
		"vid", fmt.Sprintf("0x%04X", vid),
		"pid", fmt.Sprintf("0x%04X", pid),
		"bus", dev.Desc.Bus,
		"address", dev.Desc.Address,
		"speed", dev.Desc.Speed.String())

	return &Device{Client: NewClient(dev), ctx: ctx, dev: dev}, nil
}

// Close releases the device and its libusb context.
func (d *Device) Close() error {
	return errors.Join(d.dev.Close(), d.ctx.Close())
}

// InterfaceInfo describes one audio interface setting of an attached device.
type InterfaceInfo struct {
	Number, Alternate         int
	Class, SubClass, Protocol uint8
}

// DeviceInfo describes an attached device that exposes UAC2 interfaces.
type DeviceInfo struct {
	Vendor, Product uint16
	Bus, Address    int
	Speed           string
	Interfaces      []InterfaceInfo
}

// List enumerates attached devices that expose at least one UAC2 (audio
// class, IP version 2) interface setting. Devices are not opened.
func List() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var found []DeviceInfo
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		info := DeviceInfo{
			Vendor:  uint16(desc.Vendor),
			Product: uint16(desc.Product),
			Bus:     desc.Bus,
			Address: desc.Address,
			Speed:   desc.Speed.String(),
		}
		for _, cfg := range desc.Configs {
			for _, iface := range cfg.Interfaces {
				for _, alt := range iface.AltSettings {
					if uint8(alt.Class) != audio.ClassAudio || uint8(alt.Protocol) != audio.ProtocolIPVersion2 {
						continue
					}
					info.Interfaces = append(info.Interfaces, InterfaceInfo{
						Number:    alt.Number,
						Alternate: alt.Alternate,
						Class:     uint8(alt.Class),
						SubClass:  uint8(alt.SubClass),
						Protocol:  uint8(alt.Protocol),
					})
				}
			}
		}
		if len(info.Interfaces) > 0 {
			found = append(found, info)
		}
		return false
	})
	if err != nil {
		return found, fmt.Errorf("list devices: %w", err)
	}
	return found, nil
}
