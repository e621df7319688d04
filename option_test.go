package bthost

import (
	"testing"
	"time"
)

type recordingOpt struct {
	errorHandler func(error)
	strict       bool
	hciID        int
	h4Addr       string
	h4Timeout    time.Duration
	h4Path       string
}

func (r *recordingOpt) SetErrorHandler(h func(error)) error { r.errorHandler = h; return nil }
func (r *recordingOpt) SetStrictAccounting(s bool) error    { r.strict = s; return nil }
func (r *recordingOpt) SetTransportHCISocket(id int) error  { r.hciID = id; return nil }
func (r *recordingOpt) SetTransportH4Socket(addr string, timeout time.Duration) error {
	r.h4Addr, r.h4Timeout = addr, timeout
	return nil
}
func (r *recordingOpt) SetTransportH4Uart(path string) error { r.h4Path = path; return nil }

func TestOptions(t *testing.T) {
	r := &recordingOpt{}

	for _, opt := range []Option{
		OptDeviceID(1),
		OptTransportH4Socket("127.0.0.1:1234", time.Second),
		OptTransportH4Uart("/dev/ttyACM0"),
		OptStrictAccounting(),
		OptErrorHandler(func(error) {}),
	} {
		if err := opt(r); err != nil {
			t.Fatal(err)
		}
	}

	if r.hciID != 1 || r.h4Addr != "127.0.0.1:1234" || r.h4Timeout != time.Second {
		t.Fatalf("transport options not applied: %+v", r)
	}
	if r.h4Path != "/dev/ttyACM0" || !r.strict || r.errorHandler == nil {
		t.Fatalf("options not applied: %+v", r)
	}
}

func TestDefaultLoggerChild(t *testing.T) {
	l := GetLogger()
	child := l.ChildLogger(map[string]interface{}{"pkg": "x"})
	if child == nil {
		t.Fatal("nil child logger")
	}
	child.Debugf("quiet at default level: %d", 1)
}
