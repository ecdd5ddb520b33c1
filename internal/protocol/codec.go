package protocol

import "fmt"

// ErrMalformedFrame is returned by Decode when the sentinel bytes are
// missing or the frame is too short to contain a header and trailer.
var ErrMalformedFrame = fmt.Errorf("protocol: malformed frame")

// Encode produces the on-wire frame for m: ':' | miner_id | cmd | param |
// dest | (0x00, data[i])* | '\r' | '\n'. Every payload byte is preceded by
// a zero stuffing byte, so the frame is 5 + 2*len(m.Data) + 2 bytes long.
func Encode(m *Message) []byte {
	n := len(m.Data)
	frame := make([]byte, 5+2*n+2)

	frame[0] = ':'
	frame[1] = m.MinerID
	frame[2] = byte(m.Cmd)
	frame[3] = m.Param
	frame[4] = m.Dest

	pos := 5
	for i := 0; i < n; i++ {
		frame[pos] = 0x00
		frame[pos+1] = m.Data[i]
		pos += 2
	}

	frame[pos] = '\r'
	frame[pos+1] = '\n'

	return frame
}

// Decode parses a frame previously produced by Encode (or a device
// response of the same shape). amount is the number of valid bytes in
// frame (frame may be a larger scratch buffer). It fails with
// ErrMalformedFrame if the sentinel header/trailer bytes don't match or
// the frame is shorter than the minimum 7-byte empty-payload frame.
func Decode(frame []byte, amount int) (*Message, error) {
	if amount < 7 || amount > len(frame) {
		return nil, ErrMalformedFrame
	}
	if frame[0] != ':' || frame[amount-2] != '\r' || frame[amount-1] != '\n' {
		return nil, ErrMalformedFrame
	}

	m := &Message{
		MinerID: frame[1],
		Cmd:     Command(frame[2]),
		Param:   frame[3],
		Dest:    frame[4],
	}

	length := (amount - 7) / 2
	data := make([]byte, length)
	for i := 0; i < length; i++ {
		data[i] = frame[6+2*i]
	}
	m.Data = data

	return m, nil
}
