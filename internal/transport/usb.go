//go:build !mips && !mipsle
// +build !mips,!mipsle

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USB VID/PID and endpoint addresses for the Baikal miner family. These
// match the descriptor the stock firmware reports over its CP2102-style
// bulk interface.
const (
	USBVendorID  = gousb.ID(0x0403)
	USBProductID = gousb.ID(0x6001)

	usbEndpointOut = 0x02
	usbEndpointIn  = 0x82

	usbReadTimeout = 3 * time.Second
)

// USB talks to a Baikal miner over a bulk endpoint pair, bypassing any
// kernel CDC-ACM binding.
type USB struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
}

// OpenUSB opens the miner by vendor/product ID and claims its bulk
// interface. The returned USB owns ctx/device/config/intf and releases
// them on Close.
func OpenUSB() (*USB, error) {
	ctx := gousb.NewContext()

	device, err := ctx.OpenDeviceWithVIDPID(USBVendorID, USBProductID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("transport: open usb device: %w", err)
	}
	if device == nil {
		ctx.Close()
		return nil, fmt.Errorf("transport: usb device not found (VID:0x%04x PID:0x%04x)", USBVendorID, USBProductID)
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: set usb config: %w", err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: claim usb interface: %w", err)
	}

	epOut, err := intf.OutEndpoint(usbEndpointOut)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: open out endpoint: %w", err)
	}

	epIn, err := intf.InEndpoint(usbEndpointIn)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: open in endpoint: %w", err)
	}

	return &USB{ctx: ctx, device: device, config: config, intf: intf, epOut: epOut, epIn: epIn}, nil
}

func (u *USB) WriteAll(buf []byte) (int, error) {
	n, err := u.epOut.Write(buf)
	if err != nil {
		return n, fmt.Errorf("transport: usb write: %w", err)
	}
	return n, nil
}

// ReadExact issues a single bulk read, mirroring the firmware's
// one-shot usb_read_once semantics: the device always completes a
// response in one transfer, so no internal retry loop is needed.
func (u *USB) ReadExact(buf []byte, expected int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), usbReadTimeout)
	defer cancel()

	n, err := u.epIn.ReadContext(ctx, buf[:expected])
	if err != nil {
		return n, fmt.Errorf("transport: usb read: %w", err)
	}
	return n, nil
}

func (u *USB) Drain() {
	genericDrain(func(buf []byte) (int, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		return u.epIn.ReadContext(ctx, buf)
	})
}

func (u *USB) Close() error {
	if u.intf != nil {
		u.intf.Close()
	}
	if u.config != nil {
		u.config.Close()
	}
	if u.device != nil {
		u.device.Close()
	}
	if u.ctx != nil {
		u.ctx.Close()
	}
	return nil
}

// IsUSBAvailable probes whether a Baikal USB device is currently enumerated,
// without claiming it.
func IsUSBAvailable() bool {
	ctx := gousb.NewContext()
	defer ctx.Close()

	device, err := ctx.OpenDeviceWithVIDPID(USBVendorID, USBProductID)
	if err != nil || device == nil {
		return false
	}
	device.Close()
	return true
}
