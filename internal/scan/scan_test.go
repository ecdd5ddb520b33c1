package scan

import (
	"testing"

	"github.com/baikal-mining/baikal-driver/internal/algorithm"
	"github.com/baikal-mining/baikal-driver/internal/bus"
	"github.com/baikal-mining/baikal-driver/internal/miner"
	"github.com/baikal-mining/baikal-driver/internal/protocol"
	"github.com/baikal-mining/baikal-driver/internal/workfactory"
	"github.com/stretchr/testify/require"
)

// fakeTransport serves one canned response frame per ReadExact call,
// looping the last one once the queue is drained, and records every
// frame written so tests can assert which commands were actually sent.
type fakeTransport struct {
	responses [][]byte
	next      int
	written   [][]byte
}

func (f *fakeTransport) WriteAll(buf []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), buf...))
	return len(buf), nil
}

func (f *fakeTransport) ReadExact(buf []byte, expected int) (int, error) {
	r := f.responses[f.next]
	if f.next < len(f.responses)-1 {
		f.next++
	}
	return copy(buf, r), nil
}

func (f *fakeTransport) Drain()       {}
func (f *fakeTransport) Close() error { return nil }

func ackFrame() []byte {
	return protocol.Encode(&protocol.Message{MinerID: 0, Cmd: protocol.CmdSendWork})
}

func resultFrame(flags uint8, nonce uint32, chip, workIdx, temp, unit uint8) []byte {
	data := make([]byte, 8)
	data[0] = byte(nonce)
	data[1] = byte(nonce >> 8)
	data[2] = byte(nonce >> 16)
	data[3] = byte(nonce >> 24)
	data[4] = chip
	data[5] = workIdx
	data[6] = temp
	data[7] = unit
	return protocol.Encode(&protocol.Message{MinerID: 0, Cmd: protocol.CmdGetResult, Param: flags, Data: data})
}

func (f *fakeTransport) writtenCmds(t *testing.T) []protocol.Command {
	t.Helper()
	var cmds []protocol.Command
	for _, w := range f.written {
		msg, err := protocol.Decode(w, len(w))
		require.NoError(t, err)
		cmds = append(cmds, msg.Cmd)
	}
	return cmds
}

func TestDrainResultsProcessesNonceOnlyWhenBit0Set(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true
	rec.AsicCount = 4

	work := &workfactory.Work{Data: make([]byte, 80), Algorithm: algorithm.X11}
	idx := rec.PushWork(work)
	require.Zero(t, idx)

	ft := &fakeTransport{responses: [][]byte{resultFrame(bus.FlagNoncePresent, 0xAABBCCDD, 2, 0, 48, 1)}}
	b := bus.New(ft)

	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	require.NoError(t, e.drainResults())
	require.Equal(t, 48, rec.Temp)
	require.EqualValues(t, 1, rec.Asics[1][2].Nonce)
	require.EqualValues(t, 1, rec.Nonce)
	require.NotContains(t, ft.writtenCmds(t), protocol.CmdSendWork, "no SEND_WORK should be issued without bit1")
}

func TestDrainResultsIgnoresNonceWithoutBit0(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true

	work := &workfactory.Work{Data: make([]byte, 80), Algorithm: algorithm.X11}
	rec.PushWork(work)

	ft := &fakeTransport{responses: [][]byte{resultFrame(0, 0xAABBCCDD, 2, 0, 48, 1)}}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	require.NoError(t, e.drainResults())
	require.Zero(t, rec.Nonce)
	require.Zero(t, rec.Asics[1][2].Nonce)
}

func TestDrainResultsDispatchesSendWorkOnBit1(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true

	work := &workfactory.Work{Data: make([]byte, 80), Algorithm: algorithm.X11}
	rec.PushWork(work)

	ft := &fakeTransport{responses: [][]byte{resultFrame(bus.FlagSendWork, 0, 0, 0, 40, 0), ackFrame()}}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	require.NoError(t, e.drainResults())
	cmds := ft.writtenCmds(t)
	require.Contains(t, cmds, protocol.CmdSendWork)
	require.EqualValues(t, 2, rec.WorkIdx())
}

func TestDrainResultsReturnsFatalErrorOnBit2(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true

	ft := &fakeTransport{responses: [][]byte{resultFrame(bus.FlagFatal, 0, 0, 0, 40, 0)}}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	require.Error(t, e.drainResults())
}

func TestDrainResultsDropsStaleAlgorithmNonce(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true

	work := &workfactory.Work{Data: make([]byte, 80), Algorithm: algorithm.Sia}
	rec.PushWork(work)

	ft := &fakeTransport{responses: [][]byte{resultFrame(bus.FlagNoncePresent, 0x11223344, 0, 0, 40, 0)}}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	require.NoError(t, e.drainResults())
	require.Zero(t, rec.Nonce)
	require.Zero(t, rec.Asics[0][0].Nonce)
}

func TestDrainResultsDropsNonceMarkedStaleByUpdatePass(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true

	work := &workfactory.Work{Data: make([]byte, 80), Algorithm: algorithm.X11}
	rec.PushWork(work)
	rec.MarkAllStale()

	ft := &fakeTransport{responses: [][]byte{resultFrame(bus.FlagNoncePresent, 0x11223344, 0, 0, 40, 0)}}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	require.NoError(t, e.drainResults())
	require.Zero(t, rec.Nonce)
}

func TestRefillSkipsOverheatedMiner(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true
	rec.UpdateThermal(60) // above default cutoff of 55

	ft := &fakeTransport{}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	require.NoError(t, e.refill(0, rec))
	require.Empty(t, ft.written)
	require.Zero(t, rec.WorkIdx())
}

func TestRefillShapesAndDispatchesWork(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true
	rec.WorkingDiff = 0.1

	ft := &fakeTransport{responses: [][]byte{ackFrame()}}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	require.NoError(t, e.refill(0, rec))
	require.EqualValues(t, 1, rec.WorkIdx())
	require.NotNil(t, rec.WorkAt(0))
}

func TestSourceWorkClonesPrimaryForSharedASIC(t *testing.T) {
	primary := miner.NewRecord()
	primary.Working = true
	secondary := miner.NewRecord()
	secondary.Working = true
	secondary.ASICVer = 0x51

	primaryWork := &workfactory.Work{Data: []byte{1, 2, 3}, Algorithm: algorithm.X11}
	primary.PushWork(primaryWork)

	ft := &fakeTransport{}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{primary, secondary}, factory, factory, algorithm.X11)

	work, err := e.sourceWork(1, secondary)
	require.NoError(t, err)
	require.Equal(t, primaryWork.Data, work.Data)
	// Clone must be an independent copy, not a shared pointer.
	work.Data[0] = 0xFF
	require.NotEqual(t, work.Data[0], primaryWork.Data[0])
}

func TestSourceWorkUsesFactoryForNonSharedASIC(t *testing.T) {
	primary := miner.NewRecord()
	primary.Working = true
	secondary := miner.NewRecord()
	secondary.Working = true
	secondary.ASICVer = 0x01

	primary.PushWork(&workfactory.Work{Data: []byte{1, 2, 3}, Algorithm: algorithm.X11})

	ft := &fakeTransport{}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{primary, secondary}, factory, factory, algorithm.X11)

	work, err := e.sourceWork(1, secondary)
	require.NoError(t, err)
	require.Len(t, work.Data, factory.HeaderLen)
}

func TestUpdatePassCountsByAlgorithmFamily(t *testing.T) {
	require.Equal(t, 1, updateWorkCount(algorithm.Cryptonight))
	require.Equal(t, 1, updateWorkCount(algorithm.CryptonightLite))
	require.Equal(t, 4, updateWorkCount(algorithm.Sia))
	require.Equal(t, 4, updateWorkCount(algorithm.Decred))
	require.Equal(t, 4, updateWorkCount(algorithm.X11))
}

func TestUpdatePassPrefillsFIFOAndMarksStale(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true

	existing := &workfactory.Work{Data: make([]byte, 80), Algorithm: algorithm.X11}
	rec.PushWork(existing)

	responses := make([][]byte, 0, 4)
	for i := 0; i < 4; i++ {
		responses = append(responses, ackFrame())
	}
	ft := &fakeTransport{responses: responses}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	require.NoError(t, e.UpdatePass(true))
	require.True(t, existing.Stale)
	require.EqualValues(t, 5, rec.WorkIdx()) // 1 existing + 4 prefilled
}

func TestTickReturnsZeroBeforeAnyWorkDispatched(t *testing.T) {
	rec := miner.NewRecord()
	rec.Working = true

	ft := &fakeTransport{responses: [][]byte{resultFrame(0, 0, 0, 0, 40, 0)}}
	b := bus.New(ft)
	factory := workfactory.NewMock(algorithm.X11)
	e := NewEngine(b, []*miner.Record{rec}, factory, factory, algorithm.X11)

	hashrate, err := e.Tick(0)
	require.NoError(t, err)
	require.Zero(t, hashrate)
}
