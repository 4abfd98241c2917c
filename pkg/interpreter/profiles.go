package interpreter

import "time"

// Profile selects a preset resource envelope for one Execute call. Callers
// pick the cheapest profile that fits the snippet rather than tuning raw
// timeout/memory numbers per call.
type Profile string

const (
	// ProfileQuick is for short, side-effect-free expressions (a single
	// arithmetic check, a string transform).
	ProfileQuick Profile = "quick"
	// ProfileDefault is the general-purpose profile for typical tool-driven
	// snippets.
	ProfileDefault Profile = "default"
	// ProfileAnalysis allows longer-running data-shaping code (sorting,
	// aggregating a working-memory collection).
	ProfileAnalysis Profile = "analysis"
	// ProfileExtended is reserved for the rare snippet that legitimately
	// needs the outer edge of the sandbox's resource envelope.
	ProfileExtended Profile = "extended"
)

// MaxOutputByte and MaxOutputLine are the global output caps applied to
// every Execute call regardless of profile: output is truncated, never
// aborted, once either is crossed.
const (
	MaxOutputByte = 100 << 10
	MaxOutputLine = 1000
)

// Limits is the concrete resource envelope a Profile resolves to.
type Limits struct {
	Timeout       time.Duration
	MaxMemoryByte int64
}

var profileLimits = map[Profile]Limits{
	ProfileQuick:    {Timeout: 5 * time.Second, MaxMemoryByte: 128 << 20},
	ProfileDefault:  {Timeout: 30 * time.Second, MaxMemoryByte: 512 << 20},
	ProfileAnalysis: {Timeout: 120 * time.Second, MaxMemoryByte: 2 << 30},
	ProfileExtended: {Timeout: 300 * time.Second, MaxMemoryByte: 4 << 30},
}

// ResolveLimits returns the Limits for a Profile, defaulting to
// ProfileDefault for an unrecognized or empty value.
func ResolveLimits(p Profile) Limits {
	if l, ok := profileLimits[p]; ok {
		return l
	}
	return profileLimits[ProfileDefault]
}
