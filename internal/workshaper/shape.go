// Package workshaper builds the per-algorithm SEND_WORK payload from a
// work item: target packing, midstate placement where the firmware
// supports it, and the big-endian word swaps each family needs.
package workshaper

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/baikal-mining/baikal-driver/internal/algorithm"
	"github.com/baikal-mining/baikal-driver/internal/workfactory"
)

// shapedHeaderOffset is where algorithm-specific header bytes begin in a
// SEND_WORK payload; bytes [0:10] are the fixed algo_code/miner_id/target
// prefix every family shares.
const shapedHeaderOffset = 10

// maxShapedPayload is large enough for the widest family (pascal, 210
// bytes) with room to spare; Shape trims the returned slice to its
// family's actual length.
const maxShapedPayload = 256

// Shape builds the SEND_WORK payload for w on minerID, writing into a
// fresh []byte and returning it. algo is the bus's currently-configured
// algorithm (already verified to match w.Algorithm by the caller); the
// on-wire algo_code is derived from algo, not from w.Algorithm, so a
// caller that re-syncs the bus before calling Shape gets the right code.
func Shape(algo algorithm.Algorithm, w *workfactory.Work, minerID uint8) ([]byte, error) {
	code, ok := algorithm.Code(algo)
	if !ok {
		return nil, fmt.Errorf("workshaper: unsupported algorithm %d", algo)
	}

	data := make([]byte, maxShapedPayload)
	data[0] = code
	data[1] = minerID

	// device_target[24:32] is the only slice of the target ever placed
	// on the wire. A non-zero 4-byte word at data[6:10] signals a
	// TripleS-style pool share target; the firmware wants that clamped
	// to all-ones rather than forwarded.
	copy(data[2:10], w.DeviceTarget[24:32])
	if binary.LittleEndian.Uint32(data[6:10]) != 0 {
		for i := 2; i < 6; i++ {
			data[i] = 0xff
		}
	}

	var n int
	switch algo {
	case algorithm.Blakecoin, algorithm.Vanilla:
		n = shapeBlake256r8(data, w)
	case algorithm.Decred:
		n = shapeBlake256r14(data, w)
	case algorithm.Sia:
		// Full big-endian word swap over all 80 header bytes.
		n = shapeRaw(data, w, 80, 20)
	case algorithm.Lbry:
		// Only the leading 108 of 112 header bytes are word-swapped;
		// the trailing 4 bytes are left in host order.
		n = shapeRaw(data, w, 112, 27)
	case algorithm.Pascal:
		// No byte swap at all.
		n = shapeRaw(data, w, 200, 0)
	case algorithm.Cryptonight:
		if strings.Contains(w.PoolURL, "nicehash") {
			data[0] = code + 1
		}
		n = shapeRaw(data, w, 80, 0)
	default:
		// CryptonightLite, X11, X11GOST, Skeincoin, MyriadGroestl,
		// Quark, Qubit, Groestl, Skein2, Nist, Blake, Veltor: the plain
		// 80-byte header, copied verbatim with no byte swap.
		n = shapeRaw(data, w, 80, 0)
	}

	return data[:n], nil
}

// shapeRaw copies headerLen bytes of w.Data starting at shapedHeaderOffset
// and big-endian word-swaps the leading swapWords 32-bit words in place.
// swapWords is 0 for families that place the header on the wire in host
// byte order untouched.
func shapeRaw(data []byte, w *workfactory.Work, headerLen, swapWords int) int {
	copy(data[shapedHeaderOffset:], w.Data[:headerLen])
	beWordSwap(data[shapedHeaderOffset:shapedHeaderOffset+headerLen], swapWords)
	return shapedHeaderOffset + headerLen
}

// shapeBlake256r8 lays out a blake256r8 (blakecoin/vanilla) job: either a
// midstate-accelerated 106-byte payload or a plain 90-byte header.
func shapeBlake256r8(data []byte, w *workfactory.Work) int {
	if !w.HasMidstate {
		copy(data[shapedHeaderOffset:], w.Data[:80])
		beWordSwap(data[shapedHeaderOffset:shapedHeaderOffset+80], 20)
		return shapedHeaderOffset + 80
	}

	data[0]++
	copy(data[10:42], w.Midstate[:])
	copy(data[42:58], w.Data[64:80])
	beWordSwap(data[42:58], 4)
	binary.LittleEndian.PutUint32(data[58:62], 0x00000080)
	binary.LittleEndian.PutUint32(data[94:98], 0x01000000)
	binary.LittleEndian.PutUint32(data[102:106], 0x80020000)
	return 106
}

// shapeBlake256r14 lays out a decred (blake256r14) job: either a
// midstate-accelerated 106-byte payload or a plain 190-byte header.
func shapeBlake256r14(data []byte, w *workfactory.Work) int {
	if !w.HasMidstate {
		copy(data[shapedHeaderOffset:], w.Data[:180])
		return shapedHeaderOffset + 180
	}

	data[0]++
	copy(data[10:42], w.Midstate[:])
	copy(data[42:94], w.Data[128:180])
	binary.LittleEndian.PutUint32(data[94:98], 0x01000080)
	binary.LittleEndian.PutUint32(data[98:102], 0x00000000)
	binary.LittleEndian.PutUint32(data[102:106], 0xa0050000)
	return 106
}

// beWordSwap byte-swaps n little-endian uint32 words in place to
// big-endian, the host<->device endianness flip the sia, lbry and
// blake256r8 layouts apply.
func beWordSwap(b []byte, n int) {
	for i := 0; i < n; i++ {
		w := binary.LittleEndian.Uint32(b[i*4:])
		binary.BigEndian.PutUint32(b[i*4:], w)
	}
}
