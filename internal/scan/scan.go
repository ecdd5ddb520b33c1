// Package scan implements the Scan Engine: the per-iteration
// result-drain/work-refill loop a miner's owning goroutine runs.
package scan

import (
	"fmt"
	"sync"
	"time"

	"github.com/baikal-mining/baikal-driver/internal/algorithm"
	"github.com/baikal-mining/baikal-driver/internal/bus"
	"github.com/baikal-mining/baikal-driver/internal/miner"
	"github.com/baikal-mining/baikal-driver/internal/workfactory"
	"github.com/baikal-mining/baikal-driver/internal/workshaper"
)

// primaryPollInterval is the pacing the primary miner's goroutine sleeps
// between GET_RESULT polls; secondaryPollInterval is longer since only
// the primary drains results for the whole chain.
const (
	primaryPollInterval   = 1 * time.Millisecond
	secondaryPollInterval = 50 * time.Millisecond
)

// asicVerSharedWork is the ASIC-version byte a non-primary miner reports
// when it shares miner 0's work item instead of pulling its own.
const asicVerSharedWork = 0x51

// Engine drives the scan loop for every miner on one chain: Tick(0)
// drains GET_RESULT for every attached working miner and refills a
// miner's work FIFO when the device asks for work; Tick for any other
// miner only paces itself and reports hashrate.
type Engine struct {
	Bus      *bus.Bus
	Records  []*miner.Record // indexed by miner_id
	Factory  workfactory.Factory
	Verifier workfactory.Verifier

	algoMu sync.Mutex
	algo   algorithm.Algorithm

	lastScan map[uint8]time.Time
}

// NewEngine builds a scan Engine over an already-detected chain.
func NewEngine(b *bus.Bus, records []*miner.Record, factory workfactory.Factory, verifier workfactory.Verifier, algo algorithm.Algorithm) *Engine {
	return &Engine{Bus: b, Records: records, Factory: factory, Verifier: verifier, algo: algo, lastScan: make(map[uint8]time.Time)}
}

// Algorithm returns the bus's currently-configured pool algorithm.
func (e *Engine) Algorithm() algorithm.Algorithm {
	e.algoMu.Lock()
	defer e.algoMu.Unlock()
	return e.algo
}

func (e *Engine) setAlgorithm(a algorithm.Algorithm) {
	e.algoMu.Lock()
	defer e.algoMu.Unlock()
	e.algo = a
}

// Tick runs one scan iteration for minerID. minerID 0 additionally drains
// GET_RESULT for every working miner on the chain; every other minerID
// just paces itself and does no bus I/O. It returns the hashrate
// contributed by minerID since its previous Tick, in hashes/second.
func (e *Engine) Tick(minerID uint8) (float64, error) {
	if minerID == 0 {
		if err := e.drainResults(); err != nil {
			return 0, err
		}
	} else {
		time.Sleep(secondaryPollInterval)
	}

	rec := e.Records[minerID]
	if rec == nil {
		return 0, fmt.Errorf("scan: no record for miner %d", minerID)
	}

	if rec.WorkIdx() == 0 {
		return 0, nil
	}

	now := time.Now()
	last, ok := e.lastScan[minerID]
	e.lastScan[minerID] = now
	if !ok {
		return 0, nil
	}

	elapsedMs := now.Sub(last).Milliseconds()
	if elapsedMs <= 0 {
		return 0, nil
	}
	hashes := algorithm.HashDone(e.Algorithm(), int64(rec.Clock), int64(rec.AsicCount), elapsedMs)
	return float64(hashes) / (float64(elapsedMs) / 1000), nil
}

// drainResults polls GET_RESULT for every working miner and acts on the
// response flags bitmask: bit0 routes the reported nonce through
// checkNonce, bit1 dispatches a fresh send_work for that miner, and bit2
// is a fatal condition that aborts the whole scan pass. Temperature is
// recorded before flag handling and the overheat latch is only
// recomputed afterward.
func (e *Engine) drainResults() error {
	for minerID, rec := range e.Records {
		if rec == nil || !rec.Working {
			continue
		}

		result, err := e.Bus.GetResult(uint8(minerID))
		if err != nil {
			return fmt.Errorf("scan: get_result miner %d: %w", minerID, err)
		}
		rec.SetTemp(result.TempC)

		if result.Flags&bus.FlagNoncePresent != 0 {
			if err := e.checkNonce(minerID, rec, result); err != nil {
				return err
			}
		}

		if result.Flags&bus.FlagSendWork != 0 {
			if err := e.refill(uint8(minerID), rec); err != nil {
				return err
			}
		}

		if result.Flags&bus.FlagFatal != 0 {
			return fmt.Errorf("scan: miner %d reported a fatal condition", minerID)
		}

		rec.UpdateThermal(result.TempC)
	}

	time.Sleep(primaryPollInterval)
	return nil
}

// checkNonce routes a GET_RESULT nonce to the verifier, dropping it
// silently when its work_idx is out of range, its slot is empty, its
// recorded algorithm no longer matches the bus, or it's been marked
// stale by an Update Pass.
func (e *Engine) checkNonce(minerID int, rec *miner.Record, result *bus.Result) error {
	if int(result.WorkIdx) >= miner.WorkFIFO {
		return nil
	}
	work := rec.WorkAt(result.WorkIdx)
	if work == nil {
		return nil
	}
	if work.Algorithm != e.Algorithm() || work.Stale {
		return nil
	}

	accepted, err := e.Verifier.SubmitNonce(minerID, work, result.Nonce)
	if err != nil {
		return fmt.Errorf("scan: submit_nonce miner %d: %w", minerID, err)
	}

	unit, chip := int(result.UnitID), int(result.ChipID)
	if unit < miner.MaxUnits && chip < miner.MaxASICs {
		if accepted {
			rec.Asics[unit][chip].Nonce++
			rec.Nonce++
		} else {
			rec.Asics[unit][chip].Error++
			rec.Error++
		}
	}
	return nil
}

// refill dispatches one work item to minerID: source it (a fresh item
// from the factory, or a clone of the primary miner's latest work for
// ASIC-version-0x51 secondaries that share miner 0's job), shape it for
// the bus's current algorithm, and push it over SEND_WORK. It is a no-op
// while the miner is latched overheated, matching send_work's "do not
// send" guard.
func (e *Engine) refill(minerID uint8, rec *miner.Record) error {
	if rec.IsOverheated() {
		return nil
	}

	work, err := e.sourceWork(minerID, rec)
	if err != nil {
		return fmt.Errorf("scan: get_work miner %d: %w", minerID, err)
	}

	if work.Algorithm != e.Algorithm() {
		e.setAlgorithm(work.Algorithm)
	}

	work.DeviceTarget = workfactory.DeviceTarget(rec.WorkingDiff, work)

	payload, err := workshaper.Shape(e.Algorithm(), work, minerID)
	if err != nil {
		return fmt.Errorf("scan: shape work miner %d: %w", minerID, err)
	}

	idx := rec.PushWork(work)
	if err := e.Bus.SendWork(minerID, idx, payload); err != nil {
		return fmt.Errorf("scan: send_work miner %d: %w", minerID, err)
	}
	return nil
}

// sourceWork obtains the work item refill should dispatch next: a clone
// of the primary miner's most recently pushed job for ASIC-version-0x51
// secondaries, otherwise a fresh item from the factory.
func (e *Engine) sourceWork(minerID uint8, rec *miner.Record) (*workfactory.Work, error) {
	if minerID != 0 && rec.ASICVer == asicVerSharedWork {
		primary := e.Records[0]
		if primary != nil {
			lastIdx := uint8((int(primary.WorkIdx()) - 1 + miner.WorkFIFO) % miner.WorkFIFO)
			if shared := primary.WorkAt(lastIdx); shared != nil {
				return workfactory.Clone(shared), nil
			}
		}
	}
	return e.Factory.GetWork(int(minerID))
}

// updateWorkCount returns the Update Pass prefill count for algo. The
// cryptonight family prefills one job; sia/decred read as meant to
// prefill none but fall through into the four-job default instead —
// preserved here rather than "fixed" to 0, since the intent behind the
// missing case break is unrecoverable.
func updateWorkCount(algo algorithm.Algorithm) int {
	switch algo {
	case algorithm.Cryptonight, algorithm.CryptonightLite:
		return 1
	default:
		return 4
	}
}

// UpdatePass implements the Update Pass: on a new-block signal from the
// host, the primary miner prefills every working miner's FIFO with
// updateWorkCount(algo) fresh jobs. When markStale is true (the
// compile-time "stale" path, exposed here as a runtime argument), every
// existing FIFO entry is flagged stale first so results still in flight
// against superseded work are dropped instead of submitted.
func (e *Engine) UpdatePass(markStale bool) error {
	count := updateWorkCount(e.Algorithm())

	for minerID, rec := range e.Records {
		if rec == nil || !rec.Working {
			continue
		}

		if markStale {
			rec.MarkAllStale()
		}

		for i := 0; i < count; i++ {
			if err := e.refill(uint8(minerID), rec); err != nil {
				return fmt.Errorf("scan: update_pass miner %d: %w", minerID, err)
			}
		}
	}
	return nil
}
