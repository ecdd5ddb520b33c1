// Package supervisor implements chain-level lifecycle: detect/init,
// per-miner enumeration, and shutdown.
package supervisor

import (
	"fmt"

	"github.com/baikal-mining/baikal-driver/internal/bus"
	"github.com/baikal-mining/baikal-driver/internal/config"
	"github.com/baikal-mining/baikal-driver/internal/miner"
	"github.com/baikal-mining/baikal-driver/internal/transport"
)

// Chain is a detected, ready-to-scan set of miners sharing one Bus.
type Chain struct {
	Bus     *bus.Bus
	conn    transport.Transport
	Records []*miner.Record // indexed by miner_id, 0..Bus.MinerCount-1
}

// Detect opens the chain's bus session and walks the detect flow: drain
// stale bytes, RESET to claim requestedMinerCount miners, GET_INFO and
// SET_OPTION the primary miner, then enumerate the remaining miners the
// same way. A miner that fails GET_INFO or SET_OPTION is recorded but
// left non-working rather than aborting the whole chain, so a
// partially-populated chain still comes up with whatever miners answer.
func Detect(conn transport.Transport, requestedMinerCount uint8, opts config.Options, mode uint8) (*Chain, error) {
	conn.Drain()

	b := bus.New(conn)
	if err := b.Reset(requestedMinerCount); err != nil {
		return nil, fmt.Errorf("supervisor: reset: %w", err)
	}

	chain := &Chain{Bus: b, conn: conn, Records: make([]*miner.Record, b.MinerCount)}

	for i := 0; i < b.MinerCount; i++ {
		chain.Records[i] = miner.NewRecord()
		chain.initOne(uint8(i), opts, mode)
	}

	return chain, nil
}

// initOne runs GET_INFO + SET_OPTION for minerID and populates its
// Record. A failure at either step leaves the miner present but
// Working=false so the scan loop skips it without tearing down peers.
// mode is the pool algorithm's on-wire code, sent to the device alongside
// clock/cutoff/fan so the firmware knows which algorithm to run.
func (c *Chain) initOne(minerID uint8, opts config.Options, mode uint8) {
	rec := c.Records[minerID]

	info, err := c.Bus.GetInfo(minerID)
	if err != nil {
		rec.Working = false
		return
	}

	if err := c.Bus.SetOption(minerID, opts.ClockMHz, mode, uint8(opts.CutoffTemp), uint8(opts.Fanspeed)); err != nil {
		rec.Working = false
		return
	}

	rec.FWVersion = info.FWVersion
	rec.HWVersion = info.HWVersion
	rec.BBG = info.BBG
	rec.Clock = info.ClockMHz
	rec.AsicCount = info.AsicCount
	rec.AsicCountR = info.AsicCountR
	rec.ASICVer = info.ASICVer
	rec.WorkingDiff = 0.1
	rec.Working = true
	rec.Overheated = false
}

// Identify sends SET_ID to every working miner, establishing bus
// addressing for a chain whose boards power up unaddressed.
func (c *Chain) Identify() error {
	for i, rec := range c.Records {
		if rec == nil || !rec.Working {
			continue
		}
		if err := c.Bus.SetID(uint8(i)); err != nil {
			return fmt.Errorf("supervisor: set_id miner %d: %w", i, err)
		}
	}
	return nil
}

// Shutdown idles every working miner and releases their work FIFOs, then
// closes the underlying transport. Every non-nil FIFO slot is released,
// not just the most recent one: an in-flight job on a miner that's about
// to idle has no further use for its older queued work either.
func (c *Chain) Shutdown() error {
	for i, rec := range c.Records {
		if rec == nil || !rec.Working {
			continue
		}
		_ = c.Bus.SetIdle(uint8(i))
		rec.ReleaseAll()
		rec.Working = false
	}
	return c.conn.Close()
}
