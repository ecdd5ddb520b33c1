package transport

import (
	"fmt"
	"time"

	"github.com/daedaluz/goserial"
)

// DefaultSerialPort is the UART the Baikal firmware enumerates on.
const DefaultSerialPort = "/dev/ttyS2"

const serialBaud = serial.B115200

// Serial talks to a chain of Baikal boards over a raw 115200-8N1 UART,
// using a GPIO reset line and a GPIO presence line to distinguish the
// "mini" and "cube" board layouts.
type Serial struct {
	port      *serial.Port
	minerType MinerType
}

// OpenSerial resets the board, detects its sub-type from the presence
// GPIO, and configures the UART in raw mode with a VTIME read deadline.
// readTimeout is truncated to whole deciseconds, matching termios VTIME's
// resolution.
func OpenSerial(devicePath string, readTimeout time.Duration) (*Serial, error) {
	minerType, err := detectMinerType()
	if err != nil {
		return nil, err
	}

	resetBoard(minerType)

	port, err := serial.Open(devicePath, serial.NewOptions())
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", devicePath, err)
	}

	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: get termios: %w", err)
	}

	attrs.MakeRaw()
	attrs.SetSpeed(serialBaud)
	attrs.Cflag |= serial.CREAD | serial.CLOCAL
	attrs.Cflag &^= serial.CSTOPB
	attrs.Cc[serial.VMIN] = 0
	attrs.Cc[serial.VTIME] = deciseconds(readTimeout)

	if err := port.SetAttr(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: set termios: %w", err)
	}

	return &Serial{port: port, minerType: minerType}, nil
}

func deciseconds(d time.Duration) byte {
	ds := d / (100 * time.Millisecond)
	if ds <= 0 {
		return 1
	}
	if ds > 255 {
		return 255
	}
	return byte(ds)
}

// MinerType reports which board layout was detected during Open.
func (s *Serial) MinerType() MinerType {
	return s.minerType
}

func (s *Serial) WriteAll(buf []byte) (int, error) {
	n, err := s.port.Write(buf)
	if err != nil {
		return n, fmt.Errorf("transport: serial write: %w", err)
	}
	return n, nil
}

// ReadExact reads until expected bytes have arrived. With VMIN=0/VTIME a
// read that returns zero bytes means the VTIME deadline elapsed, so the
// loop stops there and returns the short count.
func (s *Serial) ReadExact(buf []byte, expected int) (int, error) {
	total := 0
	for total < expected {
		n, err := s.port.Read(buf[total:expected])
		total += n
		if err != nil {
			return total, fmt.Errorf("transport: serial read: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

func (s *Serial) Drain() {
	genericDrain(func(buf []byte) (int, error) {
		return s.port.Read(buf)
	})
}

func (s *Serial) Close() error {
	return s.port.Close()
}
