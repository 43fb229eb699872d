package device

import (
	"errors"
	"testing"

	"github.com/ardnew/usbheadset/pkg"
)

func newTestDevice(t *testing.T) (*Device, *DescriptorTable) {
	t.Helper()
	var table DescriptorTable
	_ = table.Set(DescriptorTypeDevice, 0, []byte{18, DescriptorTypeDevice, 0x00, 0x02})
	_ = table.Set(DescriptorTypeConfiguration, 0, []byte{9, DescriptorTypeConfiguration, 9, 0, 3, 1, 0, 0x80, 50})

	dev, err := NewDeviceBuilder(&table).
		AddInterface(0x01, 0x01, 0x20).
		AddInterface(0x01, 0x02, 0x20).
		AddEndpoint(0x01, EndpointTypeIsochronous|IsoSyncAdaptive, 192).
		AddInterface(0x01, 0x02, 0x20).
		AddEndpoint(0x82, EndpointTypeIsochronous|IsoSyncAsync, 192).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return dev, &table
}

func TestDeviceBuilder(t *testing.T) {
	dev, _ := newTestDevice(t)

	ifaces := dev.Interfaces()
	if len(ifaces) != 3 {
		t.Fatalf("len(Interfaces()) = %d, want 3", len(ifaces))
	}
	for i, iface := range ifaces {
		if iface.Number != uint8(i) {
			t.Errorf("interface %d has Number %d", i, iface.Number)
		}
	}
	if dev.GetEndpoint(0x01) == nil || dev.GetEndpoint(0x82) == nil {
		t.Error("streaming endpoints not registered")
	}
	if got := len(dev.EndpointConfigs()); got != 2 {
		t.Errorf("len(EndpointConfigs()) = %d, want 2", got)
	}
}

func TestDeviceBuilder_EndpointWithoutInterface(t *testing.T) {
	_, err := NewDeviceBuilder(nil).AddEndpoint(0x81, EndpointTypeIsochronous, 64).Build()
	if !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("Build() error = %v, want ErrInvalidState", err)
	}
}

func TestDescriptorTable(t *testing.T) {
	var table DescriptorTable
	if table.Descriptor(DescriptorTypeString, 1) != nil {
		t.Error("empty table returned a descriptor")
	}
	_ = table.Set(DescriptorTypeString, 1, []byte{4, 3, 'A', 0})
	_ = table.Set(DescriptorTypeString, 1, []byte{4, 3, 'B', 0})
	if got := table.Descriptor(DescriptorTypeString, 1); string(got) != "\x04\x03B\x00" {
		t.Errorf("Descriptor() = % X, want replaced entry", got)
	}

	for i := 2; i <= MaxDescriptors; i++ {
		if err := table.Set(DescriptorTypeString, uint8(i), nil); err != nil {
			t.Fatalf("Set(%d) error = %v", i, err)
		}
	}
	if err := table.Set(DescriptorTypeString, 200, nil); !errors.Is(err, pkg.ErrNoMemory) {
		t.Errorf("Set() past capacity error = %v, want ErrNoMemory", err)
	}
}

func TestDeviceStateTransitions(t *testing.T) {
	dev, _ := newTestDevice(t)

	var transitions []State
	dev.SetOnStateChange(func(old, new State) {
		transitions = append(transitions, new)
	})

	if err := dev.SetAddress(5); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("SetAddress() before reset error = %v, want ErrInvalidState", err)
	}

	dev.Reset()
	if err := dev.SetConfiguration(1); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("SetConfiguration() before address error = %v, want ErrInvalidState", err)
	}
	if err := dev.SetAddress(5); err != nil {
		t.Fatalf("SetAddress() error = %v", err)
	}
	if dev.Address() != 5 {
		t.Errorf("Address() = %d, want 5", dev.Address())
	}
	if err := dev.SetConfiguration(2); !errors.Is(err, pkg.ErrInvalidRequest) {
		t.Errorf("SetConfiguration(2) error = %v, want ErrInvalidRequest", err)
	}
	if err := dev.SetConfiguration(ConfigurationValue); err != nil {
		t.Fatalf("SetConfiguration() error = %v", err)
	}
	if !dev.IsConfigured() || dev.Configuration() != ConfigurationValue {
		t.Error("device not configured")
	}

	dev.Suspend()
	dev.Suspend()
	if dev.State() != StateSuspended {
		t.Errorf("State() = %v, want Suspended", dev.State())
	}
	dev.Resume()
	if dev.State() != StateConfigured {
		t.Errorf("State() after resume = %v, want Configured", dev.State())
	}

	if err := dev.SetConfiguration(0); err != nil {
		t.Fatalf("SetConfiguration(0) error = %v", err)
	}
	if dev.State() != StateAddress {
		t.Errorf("State() = %v, want Address", dev.State())
	}

	want := []State{StateDefault, StateAddress, StateConfigured, StateSuspended, StateConfigured, StateAddress}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestDeviceResetClearsAlternates(t *testing.T) {
	dev, _ := newTestDevice(t)
	dev.GetInterface(1).AlternateSetting = 1
	dev.GetInterface(2).AlternateSetting = 1

	dev.Reset()

	for _, iface := range dev.Interfaces() {
		if iface.Alternate() != 0 {
			t.Errorf("interface %d alternate = %d after reset", iface.Number, iface.Alternate())
		}
	}
}

func TestDeviceGetStatus(t *testing.T) {
	dev, _ := newTestDevice(t)
	if dev.GetStatus() != 0 {
		t.Errorf("GetStatus() = %d, want 0", dev.GetStatus())
	}
	dev.SetSelfPowered(true)
	dev.EnableRemoteWakeup(true)
	want := DeviceStatusSelfPowered | DeviceStatusRemoteWakeup
	if dev.GetStatus() != want {
		t.Errorf("GetStatus() = %d, want %d", dev.GetStatus(), want)
	}
}
