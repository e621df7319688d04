package hci

import "time"

// SetErrorHandler routes asynchronous host failures to handler.
func (h *HCI) SetErrorHandler(handler func(error)) error {
	h.errorHandler = handler
	return nil
}

// SetStrictAccounting makes credit accounting mismatches fatal. See
// bthost.OptStrictAccounting.
func (h *HCI) SetStrictAccounting(strict bool) error {
	h.strict = strict
	return nil
}

// SetTransportHCISocket sets HCI device for hci socket
func (h *HCI) SetTransportHCISocket(id int) error {
	h.transport = transport{
		hci: &transportHci{id},
	}
	return nil
}

// SetTransportH4Socket sets h4 socket server
func (h *HCI) SetTransportH4Socket(addr string, timeout time.Duration) error {
	h.transport = transport{
		h4socket: &transportH4Socket{addr, timeout},
	}
	return nil
}

// SetTransportH4Uart sets h4 uart path
func (h *HCI) SetTransportH4Uart(path string) error {
	h.transport = transport{
		h4uart: &transportH4Uart{path},
	}
	return nil
}
