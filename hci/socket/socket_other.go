//go:build !linux
// +build !linux

package socket

import (
	"fmt"
	"io"
)

// Socket is only available on linux.
type Socket struct {
	io.ReadWriteCloser
}

// NewSocket is a stub for non-Linux platforms.
func NewSocket(id int) (*Socket, error) {
	return nil, fmt.Errorf("hci user channel socket is only available on linux")
}
