//go:build mips || mipsle
// +build mips mipsle

package transport

import "fmt"

// USB is unavailable on mips/mipsle: gousb's cgo-based libusb binding
// doesn't cross those targets.
type USB struct{}

func OpenUSB() (*USB, error) {
	return nil, fmt.Errorf("transport: USB is not supported on this architecture")
}

func (u *USB) WriteAll(buf []byte) (int, error)       { return 0, fmt.Errorf("transport: usb unsupported") }
func (u *USB) ReadExact(buf []byte, expected int) (int, error) {
	return 0, fmt.Errorf("transport: usb unsupported")
}
func (u *USB) Drain()      {}
func (u *USB) Close() error { return nil }

func IsUSBAvailable() bool { return false }
