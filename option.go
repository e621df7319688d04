package bthost

import "time"

// DeviceOption is the configuration surface a host implementation must
// expose to be usable with the Option helpers below.
type DeviceOption interface {
	SetErrorHandler(handler func(error)) error
	SetStrictAccounting(strict bool) error

	SetTransportHCISocket(id int) error
	SetTransportH4Socket(addr string, timeout time.Duration) error
	SetTransportH4Uart(path string) error
}

// An Option is a configuration function, which configures the device.
type Option func(DeviceOption) error

// OptDeviceID selects the HCI user channel socket of the given device id.
func OptDeviceID(id int) Option {
	return OptTransportHCISocket(id)
}

// OptTransportHCISocket sets the hci socket transport.
func OptTransportHCISocket(id int) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportHCISocket(id)
	}
}

// OptTransportH4Socket sets the h4 socket transport.
func OptTransportH4Socket(addr string, timeout time.Duration) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportH4Socket(addr, timeout)
	}
}

// OptTransportH4Uart sets the h4 uart transport.
func OptTransportH4Uart(path string) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportH4Uart(path)
	}
}

// OptErrorHandler sets the callback receiving asynchronous host errors.
func OptErrorHandler(handler func(error)) Option {
	return func(opt DeviceOption) error {
		return opt.SetErrorHandler(handler)
	}
}

// OptStrictAccounting makes credit accounting mismatches fatal instead of
// clamp-and-log. Intended for diagnostic builds; the default is to warn
// and continue with clamped counters.
func OptStrictAccounting() Option {
	return func(opt DeviceOption) error {
		return opt.SetStrictAccounting(true)
	}
}
