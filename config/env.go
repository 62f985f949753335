package config

import (
	"os"
	"strconv"
)

// MixPattern selects the TwinKernel PC-mix policy used when a work-group is
// mapped and its wavefronts are assigned initial program counters.
type MixPattern int

const (
	// MixGreaterThan starts a wavefront at the secondary entry PC when its
	// index in the work-group is greater than Env.MixRatio.
	MixGreaterThan MixPattern = 0
	// MixLessThan starts a wavefront at the secondary entry PC when its
	// index in the work-group is less than Env.MixRatio.
	MixLessThan MixPattern = 1
	// MixRoundRobin deterministically starts every odd-indexed wavefront at
	// the secondary entry PC.
	MixRoundRobin MixPattern = 2
	// MixRandom draws from the configured random source; not
	// deterministic unless Env.Seed is set.
	MixRandom MixPattern = 3
)

// Env captures the M2S_* environment toggles described in the external
// interfaces section. It is read once, at startup, into this struct so
// that no hot-path code calls os.Getenv.
type Env struct {
	// RandomCU rotates compute-unit iteration order by cycle
	// (M2S_RANDOM_CU) instead of always visiting them in index order.
	RandomCU bool

	// RandomFetch (M2S_RANDOM_FETCH) makes Fetch start its walk over the
	// wavefront pools at the active fetch-buffer index instead of pool 0.
	RandomFetch bool

	// FetchPressureSched picks the fullest fetch-buffer as the active one
	// instead of round-robin (M2S_FP_SCHED).
	FetchPressureSched bool

	// WorkGroupLimit caps work-groups per compute unit (M2S_WG_LIMIT).
	// Zero means "no cap beyond the hardware limit".
	WorkGroupLimit int

	// MixRatio is the TwinKernel PC-mix ratio (M2S_MIX_RATIO).
	MixRatio float64

	// MixPatternSel chooses the mix policy (M2S_MIX_PATTERN).
	MixPatternSel MixPattern

	// Seed seeds the RNG used by the MixRandom pattern. Without it, that
	// pattern is non-deterministic across runs, per the design notes.
	Seed int64
	HasSeed bool
}

// EnvFromEnvironment reads the M2S_* variables once. Any variable that is
// absent or fails to parse falls back to its zero-impact default.
func EnvFromEnvironment() Env {
	e := Env{
		MixRatio:      1.0,
		MixPatternSel: MixGreaterThan,
	}

	e.RandomCU = envBool("M2S_RANDOM_CU")
	e.RandomFetch = envBool("M2S_RANDOM_FETCH")
	e.FetchPressureSched = envBool("M2S_FP_SCHED")

	if v, ok := envInt("M2S_WG_LIMIT"); ok {
		e.WorkGroupLimit = v
	}

	if v, ok := envFloat("M2S_MIX_RATIO"); ok {
		e.MixRatio = v
	}

	if v, ok := envInt("M2S_MIX_PATTERN"); ok && v >= 0 && v <= 3 {
		e.MixPatternSel = MixPattern(v)
	}

	if v, ok := envInt64("M2S_SEED"); ok {
		e.Seed = v
		e.HasSeed = true
	}

	return e
}

func envBool(name string) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt64(name string) (int64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
