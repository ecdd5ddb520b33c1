// Package miner holds the per-logical-miner record a Bus Session
// addresses: identity, thermal state, the work FIFO, and the per-ASIC
// nonce/error counters.
package miner

import (
	"sync"

	"github.com/baikal-mining/baikal-driver/internal/workfactory"
)

// Hardware bounds shared by every Baikal board variant.
const (
	MaxMiners  = 5
	MaxUnits   = 4
	MaxASICs   = 16
	WorkFIFO   = 200
	ClockMin   = 150
	ClockMax   = 400
	ClockDef   = 200
	CutoffTemp = 55
	RecoverTemp = 40
	FanspeedDef = 100
	FanspeedMax = 100
)

// ASICCounter tracks accepted nonces and hardware errors for one chip.
type ASICCounter struct {
	Nonce uint32
	Error uint32
}

// Record is the host-side state for one logical miner on a bus: what
// GET_INFO reported, the live thermal/clock configuration, the work
// FIFO, and the per-chip counter matrix.
type Record struct {
	mu sync.Mutex

	ThreadID   int
	AsicCount  int
	AsicCountR int
	UnitCount  int
	FWVersion  uint8
	HWVersion  uint8
	ASICVer    uint8
	BBG        uint8

	Clock int
	Temp  int

	Working    bool
	Overheated bool

	WorkingDiff float64

	Nonce uint32
	Error uint32

	Asics [MaxUnits][MaxASICs]ASICCounter

	works   [WorkFIFO]*workfactory.Work
	workIdx uint8
}

// NewRecord returns an idle Record with default clock and no thermal
// latch asserted.
func NewRecord() *Record {
	return &Record{Clock: ClockDef}
}

// PushWork stores w at the current work_idx slot, advances work_idx
// modulo WorkFIFO, and returns the slot index w now occupies — the
// param byte a SEND_WORK command must carry.
func (r *Record) PushWork(w *workfactory.Work) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.workIdx
	r.works[idx] = w
	r.workIdx = (r.workIdx + 1) % WorkFIFO
	return idx
}

// WorkAt returns the work item stored at idx, or nil if the slot was
// never populated or has been released.
func (r *Record) WorkAt(idx uint8) *workfactory.Work {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(idx) >= WorkFIFO {
		return nil
	}
	return r.works[idx]
}

// WorkIdx returns the FIFO slot the next PushWork will occupy. A value of
// 0 means either no work has been dispatched to this miner yet or the
// cursor has just wrapped after a multiple of WorkFIFO pushes.
func (r *Record) WorkIdx() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workIdx
}

// MarkAllStale flags every live FIFO entry as stale, used by the Update
// Pass before refilling on a new block so in-flight results against the
// old work are dropped rather than submitted.
func (r *Record) MarkAllStale() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.works {
		if w != nil {
			w.Stale = true
		}
	}
}

// ReleaseAll clears every non-nil FIFO slot, used on shutdown.
func (r *Record) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.works {
		r.works[i] = nil
	}
}

// SetTemp records the latest reported temperature without touching the
// overheat latch: the reported temperature is stored before
// nonce/send-work/fatal handling, and the hysteresis transition is only
// evaluated afterward via UpdateThermal.
func (r *Record) SetTemp(temp int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Temp = temp
}

// UpdateThermal applies the cutoff/recover hysteresis: Overheated latches
// true once Temp exceeds CutoffTemp and stays true until Temp drops below
// RecoverTemp. Both comparisons are strict, matching the two-threshold
// design: a temperature sitting between RecoverTemp and CutoffTemp never
// changes the latch.
func (r *Record) UpdateThermal(temp int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Temp = temp
	if temp > CutoffTemp {
		r.Overheated = true
	} else if temp < RecoverTemp {
		r.Overheated = false
	}
}

// IsOverheated reports the current thermal latch state.
func (r *Record) IsOverheated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Overheated
}
