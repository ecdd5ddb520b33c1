package transport

import (
	"fmt"
	"os"
	"time"
)

// MinerType distinguishes the two serial board form factors the presence
// GPIO can report.
type MinerType uint8

const (
	MinerTypeNone MinerType = 0x00
	MinerTypeMini MinerType = 0x01
	MinerTypeCube MinerType = 0x02
)

// sysfs GPIO paths for the two board layouts.
const (
	gpioResetMini = "/sys/class/gpio_sw/PA21/data"
	gpioExistMini = "/sys/class/gpio_sw/PA8/data"

	gpioResetCube = "/sys/class/gpio_sw/PA10/data"
	gpioExistCube = "/sys/class/gpio_sw/PA19/data"
)

func gpioWrite(path string, value byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("transport: open gpio %s: %w", path, err)
	}
	defer f.Close()
	_, err = f.Write([]byte{value})
	return err
}

func gpioRead(path string) (byte, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("transport: open gpio %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, 1)
	if _, err := f.Read(buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// resetBoard toggles the reset GPIO for the given board type: low, a
// 10ms settle, then high, then a 200ms quiescence before the bus is
// usable.
func resetBoard(minerType MinerType) {
	var path string
	switch minerType {
	case MinerTypeMini:
		path = gpioResetMini
	case MinerTypeCube:
		path = gpioResetCube
	default:
		return
	}

	if err := gpioWrite(path, '0'); err != nil {
		return
	}
	time.Sleep(10 * time.Millisecond)
	if err := gpioWrite(path, '1'); err != nil {
		return
	}
	time.Sleep(200 * time.Millisecond)
}

// detectMinerType reads the presence GPIO for the mini board first, then
// falls back to the cube board.
func detectMinerType() (MinerType, error) {
	if value, err := gpioRead(gpioExistMini); err == nil && value != '0' {
		return MinerTypeMini, nil
	}

	if value, err := gpioRead(gpioExistCube); err == nil && value == '0' {
		return MinerTypeCube, nil
	}

	return MinerTypeNone, fmt.Errorf("transport: no baikal board detected on presence gpio")
}
