// Package config parses the environment-variable knobs the driver's
// operator-facing wrapper exposes: clock target, thermal thresholds, and
// fan speed. Pool/stratum configuration is out of scope here; it belongs
// to the workfactory.Factory implementation the caller supplies.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/baikal-mining/baikal-driver/internal/miner"
)

// Options holds the tunables BAIKAL_OPTIONS/BAIKAL_FAN carry.
type Options struct {
	ClockMHz   int
	CutoffTemp int
	RecoverTemp int
	Fanspeed   int
}

// Default returns the firmware's documented defaults.
func Default() Options {
	return Options{
		ClockMHz:    miner.ClockDef,
		CutoffTemp:  miner.CutoffTemp,
		RecoverTemp: miner.RecoverTemp,
		Fanspeed:    miner.FanspeedDef,
	}
}

// FromEnv reads BAIKAL_OPTIONS (colon-separated "clock:recover:cutoff" or
// the shorter "recover:cutoff" form) and BAIKAL_FAN, overlaying them
// onto Default().
func FromEnv() (Options, error) {
	opts := Default()

	if raw := os.Getenv("BAIKAL_OPTIONS"); raw != "" {
		if err := opts.parseOptionsString(raw); err != nil {
			return Options{}, err
		}
	}

	if raw := os.Getenv("BAIKAL_FAN"); raw != "" {
		fan, err := strconv.Atoi(raw)
		if err != nil {
			return Options{}, fmt.Errorf("config: BAIKAL_FAN: %w", err)
		}
		opts.Fanspeed = fan
	}

	if err := opts.Normalize(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o *Options) parseOptionsString(raw string) error {
	fields := strings.Split(raw, ":")

	var ints []int
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return fmt.Errorf("config: BAIKAL_OPTIONS field %q: %w", f, err)
		}
		ints = append(ints, v)
	}

	switch len(ints) {
	case 2:
		o.RecoverTemp, o.CutoffTemp = ints[0], ints[1]
	case 3:
		o.ClockMHz, o.RecoverTemp, o.CutoffTemp = ints[0], ints[1], ints[2]
	default:
		return fmt.Errorf("config: BAIKAL_OPTIONS expects 2 or 3 colon-separated fields, got %d", len(ints))
	}
	return nil
}

// Normalize clamps out-of-range operator input instead of rejecting it:
// a non-zero clock outside [ClockMin, ClockMax] is clamped to that
// range, and a fanspeed above FanspeedMax resets to FanspeedDef.
// Recover/cutoff have no such fallback, so an inverted pair is still
// an error.
func (o *Options) Normalize() error {
	if o.ClockMHz != 0 {
		if o.ClockMHz < miner.ClockMin {
			o.ClockMHz = miner.ClockMin
		}
		if o.ClockMHz > miner.ClockMax {
			o.ClockMHz = miner.ClockMax
		}
	}
	if o.Fanspeed > miner.FanspeedMax {
		o.Fanspeed = miner.FanspeedDef
	}
	if o.RecoverTemp >= o.CutoffTemp {
		return fmt.Errorf("config: recover temp %d must be below cutoff temp %d", o.RecoverTemp, o.CutoffTemp)
	}
	return nil
}
