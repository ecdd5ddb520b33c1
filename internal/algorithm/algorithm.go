// Package algorithm holds the per-algorithm constants the Work Shaper and
// hashrate accounting need: the on-wire algorithm code and the empirical
// hashrate multiplier. Payload layouts live in package workshaper.
package algorithm

// Algorithm identifies a pool mining algorithm the Baikal firmware
// supports. The zero value is invalid; use Unknown explicitly if needed.
type Algorithm int

const (
	Unknown Algorithm = iota
	Blakecoin
	Vanilla
	Decred
	Sia
	Lbry
	Pascal
	Cryptonight
	CryptonightLite
	X11
	X11GOST
	Skeincoin
	Skein2
	MyriadGroestl
	Quark
	Qubit
	Groestl
	Nist
	Blake
	Veltor
)

// wireCode is the base on-wire algo_code written to data[0] for each
// family, before any midstate/cn_nice +1 bump.
var wireCode = map[Algorithm]uint8{
	Blakecoin:       0x01,
	Vanilla:         0x02,
	Decred:          0x03,
	Sia:             0x04,
	Lbry:            0x05,
	Pascal:          0x06,
	Cryptonight:     0x07,
	CryptonightLite: 0x08,
	X11:             0x09,
	X11GOST:         0x0a,
	Skeincoin:       0x0b,
	Skein2:          0x0c,
	MyriadGroestl:   0x0d,
	Quark:           0x0e,
	Qubit:           0x0f,
	Groestl:         0x10,
	Nist:            0x11,
	Blake:           0x12,
	Veltor:          0x13,
}

// Code returns the base wire algo_code for a, and false if a is not a
// recognized algorithm.
func Code(a Algorithm) (uint8, bool) {
	c, ok := wireCode[a]
	return c, ok
}

// kEntry is the empirical hashrate multiplier/divisor for one algorithm.
// HashDone computes clock_MHz * asic_count * elapsed_ms, then applies it.
type kEntry struct {
	mul int64
	div int64
}

var kTable = map[Algorithm]kEntry{
	Cryptonight:     {mul: 1, div: 2000},
	CryptonightLite: {mul: 1, div: 1000},
	X11:             {mul: 120, div: 1},
	Quark:           {mul: 120, div: 1},
	Qubit:           {mul: 120, div: 1},
	Nist:            {mul: 120, div: 1},
	MyriadGroestl:   {mul: 120, div: 1},
	Groestl:         {mul: 120, div: 1},
	Skeincoin:       {mul: 62, div: 1},
	Skein2:          {mul: 62, div: 1},
	X11GOST:         {mul: 16, div: 1},
	Veltor:          {mul: 16, div: 1},
	Blakecoin:       {mul: 2000, div: 1},
	Decred:          {mul: 2000, div: 1},
	Vanilla:         {mul: 2000, div: 1},
	Blake:           {mul: 2000, div: 1},
	Sia:             {mul: 1000, div: 1},
	Lbry:            {mul: 500, div: 1},
	Pascal:          {mul: 500, div: 1},
}

// HashDone applies the algorithm-specific multiplier/divisor to the raw
// clock*asics*elapsed product. Algorithms outside kTable (e.g. Unknown)
// contribute zero, matching the source switch statement's lack of a
// default case.
func HashDone(a Algorithm, clockMHz, asicCount, elapsedMs int64) int64 {
	k, ok := kTable[a]
	if !ok {
		return 0
	}
	raw := clockMHz * asicCount * elapsedMs
	return (raw * k.mul) / k.div
}
