package bus

import (
	"testing"

	"github.com/baikal-mining/baikal-driver/internal/protocol"
	"github.com/stretchr/testify/require"
)

// mockTransport answers each write with a pre-programmed response frame,
// so Bus methods can be exercised without real hardware.
type mockTransport struct {
	written  [][]byte
	response []byte
}

func (m *mockTransport) WriteAll(buf []byte) (int, error) {
	cp := append([]byte(nil), buf...)
	m.written = append(m.written, cp)
	return len(buf), nil
}

func (m *mockTransport) ReadExact(buf []byte, expected int) (int, error) {
	n := copy(buf, m.response)
	return n, nil
}

func (m *mockTransport) Drain()      {}
func (m *mockTransport) Close() error { return nil }

func ackFrame(param uint8) []byte {
	return protocol.Encode(&protocol.Message{MinerID: 0, Cmd: protocol.CmdReset, Param: param})
}

func TestResetRecordsEchoedMinerCount(t *testing.T) {
	mt := &mockTransport{response: ackFrame(3)}
	b := New(mt)

	require.NoError(t, b.Reset(3))
	require.Equal(t, 3, b.MinerCount)
	require.Len(t, mt.written, 1)
}

func TestGetInfoDecodesPayload(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x05, 100, 4, 4, 0x51}
	resp := protocol.Encode(&protocol.Message{MinerID: 0, Cmd: protocol.CmdGetInfo, Data: payload})
	mt := &mockTransport{response: resp}
	b := New(mt)

	info, err := b.GetInfo(0)
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), info.FWVersion)
	require.Equal(t, uint8(0x02), info.HWVersion)
	require.Equal(t, uint8(0x05), info.BBG)
	require.Equal(t, 200, info.ClockMHz)
	require.Equal(t, 4, info.AsicCount)
	require.Equal(t, 4, info.AsicCountR)
	require.Equal(t, uint8(0x51), info.ASICVer)
}

func TestEncodeClockSpotChecks(t *testing.T) {
	require.Equal(t, uint8(0), EncodeClock(0))
	// clk_code cycles every 200MHz, so 200 and 400 both encode to 2.
	require.Equal(t, uint8(2), EncodeClock(200))
	require.Equal(t, uint8(2), EncodeClock(400))
	require.Equal(t, uint8(17), EncodeClock(150))
	require.Equal(t, uint8(21), EncodeClock(390))
}

func TestGetResultDecodesPayload(t *testing.T) {
	payload := make([]byte, 8)
	payload[0], payload[1], payload[2], payload[3] = 0x78, 0x56, 0x34, 0x12
	payload[4] = 7  // chip_id
	payload[5] = 42 // work_idx
	payload[6] = 48 // temp
	payload[7] = 2  // unit_id

	resp := protocol.Encode(&protocol.Message{MinerID: 1, Cmd: protocol.CmdGetResult, Param: 0x03, Data: payload})
	mt := &mockTransport{response: resp}
	b := New(mt)

	result, err := b.GetResult(1)
	require.NoError(t, err)
	require.Equal(t, uint32(0x12345678), result.Nonce)
	require.EqualValues(t, 7, result.ChipID)
	require.EqualValues(t, 42, result.WorkIdx)
	require.Equal(t, 48, result.TempC)
	require.EqualValues(t, 2, result.UnitID)
	require.Equal(t, uint8(0x03), result.Flags)
	require.NotZero(t, result.Flags&FlagNoncePresent)
	require.NotZero(t, result.Flags&FlagSendWork)
	require.Zero(t, result.Flags&FlagFatal)
}

func TestSetOptionSendsFourBytePayload(t *testing.T) {
	mt := &mockTransport{response: ackFrame(0)}
	b := New(mt)

	require.NoError(t, b.SetOption(2, 200, 0x09, 55, 100))

	decoded, err := protocol.Decode(mt.written[0], len(mt.written[0]))
	require.NoError(t, err)
	require.Equal(t, protocol.CmdSetOption, decoded.Cmd)
	require.Equal(t, []byte{EncodeClock(200), 0x09, 55, 100}, decoded.Data)
}

func TestSetIdleDoesNotReadAResponse(t *testing.T) {
	mt := &mockTransport{}
	b := New(mt)

	require.NoError(t, b.SetIdle(3))
	require.Len(t, mt.written, 1)

	decoded, err := protocol.Decode(mt.written[0], len(mt.written[0]))
	require.NoError(t, err)
	require.Equal(t, protocol.CmdSetIdle, decoded.Cmd)
}

func TestSendWorkWritesShapedPayload(t *testing.T) {
	mt := &mockTransport{response: ackFrame(0)}
	b := New(mt)

	payload := []byte{0x09, 0x01, 0xAA, 0xBB}
	require.NoError(t, b.SendWork(1, 5, payload))

	decoded, err := protocol.Decode(mt.written[0], len(mt.written[0]))
	require.NoError(t, err)
	require.Equal(t, protocol.CmdSendWork, decoded.Cmd)
	require.EqualValues(t, 5, decoded.Param)
	require.Equal(t, payload, decoded.Data)
}
