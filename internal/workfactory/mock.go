package workfactory

import (
	"sync"
	"sync/atomic"

	"github.com/baikal-mining/baikal-driver/internal/algorithm"
)

// Mock is an in-memory Factory/Verifier used by tests and by cmd/baikald
// when no real pool client is wired in. Every GetWork call returns a
// freshly incrementing, otherwise-static header so callers can exercise
// the full bus/miner/scan pipeline without a network.
type Mock struct {
	Algorithm algorithm.Algorithm
	// HeaderLen is the Data length GetWork produces; callers typically
	// set this to match Algorithm's expected header size.
	HeaderLen int

	mu      sync.Mutex
	counter uint32

	accepted uint64
	rejected uint64
}

// NewMock returns a Mock configured for algo with a plain 80-byte header,
// the size most algorithm families expect.
func NewMock(algo algorithm.Algorithm) *Mock {
	return &Mock{Algorithm: algo, HeaderLen: 80}
}

// GetWork returns a new Work item whose header's first 4 bytes encode an
// incrementing counter, so tests can distinguish successive jobs.
func (m *Mock) GetWork(minerID int) (*Work, error) {
	m.mu.Lock()
	m.counter++
	n := m.counter
	m.mu.Unlock()

	data := make([]byte, m.HeaderLen)
	data[0] = byte(n)
	data[1] = byte(n >> 8)
	data[2] = byte(n >> 16)
	data[3] = byte(n >> 24)

	return &Work{
		Data:           data,
		Algorithm:      m.Algorithm,
		WorkDifficulty: 1,
	}, nil
}

// SubmitNonce always accepts in the mock implementation and counts
// accepted/rejected submissions for test assertions.
func (m *Mock) SubmitNonce(minerID int, work *Work, nonce uint32) (bool, error) {
	atomic.AddUint64(&m.accepted, 1)
	return true, nil
}

// Stats returns the accepted/rejected counters accumulated so far.
func (m *Mock) Stats() (accepted, rejected uint64) {
	return atomic.LoadUint64(&m.accepted), atomic.LoadUint64(&m.rejected)
}
