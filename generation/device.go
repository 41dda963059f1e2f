package generation

import (
	"fmt"
	"strings"
)

// Device is where the model runs. The numeric value is the identifier the
// inference collaborators expect: 0 for the first accelerator, -1 for CPU.
type Device int

const (
	DeviceCPU  Device = -1
	DeviceCUDA Device = 0
)

// ID returns the collaborator's device identifier
func (d Device) ID() int {
	return int(d)
}

func (d Device) String() string {
	if d == DeviceCUDA {
		return "cuda"
	}
	return "cpu"
}

// DevicePreference is the configured device choice
type DevicePreference string

const (
	DeviceAuto DevicePreference = "auto"
	PreferCPU  DevicePreference = "cpu"
	PreferCUDA DevicePreference = "cuda"
)

// ParseDevicePreference maps a configuration value onto a DevicePreference
func ParseDevicePreference(s string) (DevicePreference, error) {
	switch p := DevicePreference(strings.ToLower(strings.TrimSpace(s))); p {
	case DeviceAuto, PreferCPU, PreferCUDA:
		return p, nil
	case "":
		return DeviceAuto, nil
	}
	return "", fmt.Errorf("unknown device %q (want auto, cpu or cuda)", s)
}

// AcceleratorProbe reports whether an accelerator is usable
type AcceleratorProbe func() bool

// SelectDevice resolves a preference into a device. Auto prefers the
// accelerator and falls back to CPU; an explicit cuda preference fails when
// no accelerator is present.
func SelectDevice(pref DevicePreference, probe AcceleratorProbe) (Device, error) {
	available := probe != nil && probe()

	switch pref {
	case PreferCPU:
		return DeviceCPU, nil
	case PreferCUDA:
		if !available {
			return DeviceCPU, fmt.Errorf("cuda requested but no accelerator is available")
		}
		return DeviceCUDA, nil
	}

	if available {
		return DeviceCUDA, nil
	}
	return DeviceCPU, nil
}
