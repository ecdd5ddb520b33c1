// Package workfactory defines the external pool/stratum boundary: the
// process-wide mining work factory that supplies work items and verifies
// nonces. The core driver only consumes the Factory and Verifier
// interfaces; a real pool client implements them outside this module.
// mock.go supplies an in-memory reference implementation for tests and
// standalone runs.
package workfactory

import "github.com/baikal-mining/baikal-driver/internal/algorithm"

// Work is a job descriptor handed to a miner: header bytes, an optional
// precomputed midstate, the pool's target/algorithm metadata, and the
// working difficulty floor used to compute the on-device target.
type Work struct {
	// Data holds the algorithm-specific header bytes the Work Shaper
	// slices from (80, 112, 180 or 200 bytes depending on algorithm and
	// midstate use).
	Data []byte

	// Midstate is the 32-byte SHA state precomputed by the host for
	// blake256 families; valid only when HasMidstate is true.
	Midstate    [32]byte
	HasMidstate bool

	// Algorithm is the pool's algorithm for this job; the Work Shaper
	// re-aligns the bus's active algorithm to this value if they differ.
	Algorithm algorithm.Algorithm

	// WorkDifficulty is the pool-assigned difficulty for this job; the
	// device target uses max(minerWorkingDiff, WorkDifficulty).
	WorkDifficulty float64

	// DiffMultiplier2 is the pool's target-scaling constant, passed
	// through to the share-target formula unchanged.
	DiffMultiplier2 float64

	// PoolURL is consulted only to detect "nicehash" for the
	// cryptonight cn_nice wire-code bump.
	PoolURL string

	// DeviceTarget is the 32-byte on-device target computed from
	// WorkDifficulty/DiffMultiplier2; only the trailing 8 bytes
	// (DeviceTarget[24:32]) are ever placed on the wire.
	DeviceTarget [32]byte

	// Stale is set by the Update Pass when a new block supersedes this
	// job; a result that references a stale slot is dropped rather than
	// submitted.
	Stale bool
}

// Clone returns a copy of w with its own Data slice, suitable for the
// "share primary miner's work" path used by ASIC-version-0x51 secondary
// miners.
func Clone(w *Work) *Work {
	if w == nil {
		return nil
	}
	clone := *w
	clone.Data = append([]byte(nil), w.Data...)
	return &clone
}

// Factory supplies work items to dispatch to the device. Implementations
// must be safe for concurrent use by every miner goroutine sharing a bus.
type Factory interface {
	// GetWork returns the next work item for minerID's current pool
	// algorithm.
	GetWork(minerID int) (*Work, error)
}

// Verifier validates nonces found on-device, the Go equivalent of
// submit_nonce(). It reports whether the nonce met the device target
// (true) or was a hardware error (false); err is reserved for
// verifier-internal failures distinct from a rejected nonce.
type Verifier interface {
	SubmitNonce(minerID int, work *Work, nonce uint32) (accepted bool, err error)
}
