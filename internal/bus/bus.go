// Package bus implements the Bus Session: a single mutex-serialized
// command/response transaction path shared by every logical miner
// attached to one transport.
package bus

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/baikal-mining/baikal-driver/internal/protocol"
	"github.com/baikal-mining/baikal-driver/internal/transport"
)

// Bus serializes all command/response exchanges for the miners attached
// to a single transport. Every exported method acquires mu for the
// duration of its request/response round trip.
type Bus struct {
	mu   sync.Mutex
	conn transport.Transport

	MinerCount int
}

// New wraps conn in a Bus with no miners yet registered.
func New(conn transport.Transport) *Bus {
	return &Bus{conn: conn}
}

// Info is the decoded GET_INFO payload for one miner.
type Info struct {
	FWVersion  uint8
	HWVersion  uint8
	BBG        uint8
	ClockMHz   int
	AsicCount  int
	AsicCountR int
	ASICVer    uint8
}

// Result is the decoded GET_RESULT payload for one miner.
type Result struct {
	Nonce   uint32
	ChipID  uint8
	WorkIdx uint8
	TempC   int
	UnitID  uint8
	Flags   uint8
}

// GET_RESULT response param bitmask.
const (
	FlagNoncePresent uint8 = 1 << 0 // a nonce is present in this result
	FlagSendWork     uint8 = 1 << 1 // device wants fresh work dispatched
	FlagFatal        uint8 = 1 << 2 // fatal condition, caller must abandon the scan pass
)

// transact sends req, reads a response of exactly respLen frame bytes,
// and decodes it. Callers must hold mu.
func (b *Bus) transact(req *protocol.Message, respLen int) (*protocol.Message, error) {
	frame := protocol.Encode(req)
	if _, err := b.conn.WriteAll(frame); err != nil {
		return nil, fmt.Errorf("bus: write %v: %w", req.Cmd, err)
	}

	buf := make([]byte, respLen)
	n, err := b.conn.ReadExact(buf, respLen)
	if err != nil {
		return nil, fmt.Errorf("bus: read %v response: %w", req.Cmd, err)
	}

	resp, err := protocol.Decode(buf, n)
	if err != nil {
		return nil, fmt.Errorf("bus: decode %v response: %w", req.Cmd, err)
	}
	return resp, nil
}

// Reset sends RESET to miner 0 with the requested miner count as param
// and records the count the firmware echoes back.
func (b *Bus) Reset(minerCount uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := &protocol.Message{MinerID: 0, Cmd: protocol.CmdReset, Param: minerCount}
	resp, err := b.transact(req, protocol.RespLenShort)
	if err != nil {
		return err
	}
	b.MinerCount = int(resp.Param)
	return nil
}

// GetInfo reads identity/capability fields for minerID. The firmware
// packs them as 7 raw payload bytes: fw_ver, hw_ver, bbg, clock (halved),
// asic_count, asic_count_r, asic_ver.
func (b *Bus) GetInfo(minerID uint8) (*Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := &protocol.Message{MinerID: minerID, Cmd: protocol.CmdGetInfo}
	resp, err := b.transact(req, protocol.RespLenInfo)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) < 7 {
		return nil, fmt.Errorf("bus: get_info: short payload (%d bytes)", len(resp.Data))
	}

	return &Info{
		FWVersion:  resp.Data[0],
		HWVersion:  resp.Data[1],
		BBG:        resp.Data[2],
		ClockMHz:   int(resp.Data[3]) << 1,
		AsicCount:  int(resp.Data[4]),
		AsicCountR: int(resp.Data[5]),
		ASICVer:    resp.Data[6],
	}, nil
}

// EncodeClock maps a requested clock in MHz to the firmware's clk_code: 0
// (leave unchanged) for clock==0, otherwise ((clock/10)%20)+2.
func EncodeClock(clockMHz int) uint8 {
	if clockMHz == 0 {
		return 0
	}
	return uint8(((clockMHz/10)%20)+2)
}

// SetOption pushes a clock target (MHz, 0 = leave unchanged), an algorithm
// mode byte, a cutoff temperature, and a fan speed to minerID. The
// firmware expects all four as a single 4-byte payload, not just the
// clock code.
func (b *Bus) SetOption(minerID uint8, clockMHz int, mode, cutoffTemp, fanspeed uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := &protocol.Message{
		MinerID: minerID,
		Cmd:     protocol.CmdSetOption,
		Data:    []byte{EncodeClock(clockMHz), mode, cutoffTemp, fanspeed},
	}
	_, err := b.transact(req, protocol.RespLenShort)
	return err
}

// SetID assigns minerID's bus address.
func (b *Bus) SetID(minerID uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := &protocol.Message{MinerID: minerID, Cmd: protocol.CmdSetID}
	_, err := b.transact(req, protocol.RespLenShort)
	return err
}

// SetIdle tells minerID to stop hashing; used during shutdown. It is
// fire-and-forget: the firmware sends no response to SET_IDLE, so this
// writes the request frame and returns without reading.
func (b *Bus) SetIdle(minerID uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := &protocol.Message{MinerID: minerID, Cmd: protocol.CmdSetIdle}
	if _, err := b.conn.WriteAll(protocol.Encode(req)); err != nil {
		return fmt.Errorf("bus: write %v: %w", req.Cmd, err)
	}
	return nil
}

// SendWork pushes an already-shaped payload to minerID at workIdx.
func (b *Bus) SendWork(minerID uint8, workIdx uint8, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := &protocol.Message{MinerID: minerID, Cmd: protocol.CmdSendWork, Param: workIdx, Data: payload}
	_, err := b.transact(req, protocol.RespLenShort)
	return err
}

// GetResult drains one pending nonce/status report for minerID. The 8-byte
// payload is a little-endian nonce followed by chip_id, work_idx, temp_c,
// unit_id.
func (b *Bus) GetResult(minerID uint8) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := &protocol.Message{MinerID: minerID, Cmd: protocol.CmdGetResult}
	resp, err := b.transact(req, protocol.RespLenResult)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) < 8 {
		return nil, fmt.Errorf("bus: get_result: short payload (%d bytes)", len(resp.Data))
	}

	return &Result{
		Nonce:   binary.LittleEndian.Uint32(resp.Data[0:4]),
		ChipID:  resp.Data[4],
		WorkIdx: resp.Data[5],
		TempC:   int(resp.Data[6]),
		UnitID:  resp.Data[7],
		Flags:   resp.Param,
	}, nil
}
