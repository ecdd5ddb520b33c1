package workfactory

import "math/big"

// diff1Target is the standard difficulty-1 target: the largest possible
// 256-bit target, against which every other difficulty's target is
// computed by division. Matches the widely-used SHA256 diff-1 constant
// 0x00000000FFFF0000...0000.
var diff1Target = func() *big.Int {
	b := make([]byte, 32)
	b[4], b[5] = 0xFF, 0xFF
	return new(big.Int).SetBytes(b)
}()

// targetPrecision is the fixed-point scale applied before dividing, so
// fractional difficulties (e.g. the 0.1 working-difficulty floor) don't
// collapse to zero under integer division.
const targetPrecision = 100000000

// DeviceTarget computes the 32-byte on-device share target for w:
// device_diff = max(workingDiff, w.WorkDifficulty), scaled by the pool's
// diff_multiplier2 against diff1Target. This is the standard bdiff-style
// target-from-difficulty formula every bdiff pool protocol uses.
func DeviceTarget(workingDiff float64, w *Work) [32]byte {
	deviceDiff := workingDiff
	if w.WorkDifficulty > deviceDiff {
		deviceDiff = w.WorkDifficulty
	}
	return shareTarget(deviceDiff, w.DiffMultiplier2)
}

func shareTarget(diff, diffMultiplier2 float64) [32]byte {
	if diff <= 0 {
		diff = 1
	}
	if diffMultiplier2 <= 0 {
		diffMultiplier2 = 1
	}

	scaled := int64(diff * diffMultiplier2 * targetPrecision)
	if scaled <= 0 {
		scaled = 1
	}

	num := new(big.Int).Mul(diff1Target, big.NewInt(targetPrecision))
	t := new(big.Int).Div(num, big.NewInt(scaled))

	var out [32]byte
	raw := t.Bytes()
	if len(raw) > 32 {
		raw = raw[len(raw)-32:]
	}
	copy(out[32-len(raw):], raw)
	return out
}
