package ratelimit

import "time"

// Operation types with dedicated admission policies.
const (
	// OpCredit is the point-crediting path.
	OpCredit = "credit"
	// OpResolve is card resolution on its own (diagnostic callers).
	OpResolve = "resolve"
	// OpEnroll is program enrollment.
	OpEnroll = "enroll"
	// OpLogin is dashboard sign-in.
	OpLogin = "login"
)

// Policy configures admission for one operation type. These numbers are
// policy, not invariants; deployments tune them through config or the
// settings table.
type Policy struct {
	MaxAttempts int           // Attempts allowed per window.
	Window      time.Duration // Sliding window length.
	Block       time.Duration // How long to block after the window is exceeded.
	DailyLimit  int           // Attempts allowed per 24h, 0 disables the cap.
}

// PolicySpec is the serialized form of a Policy used in YAML config and
// settings-table overrides.
type PolicySpec struct {
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	WindowSecs  int `yaml:"window_seconds" json:"window_seconds"`
	BlockSecs   int `yaml:"block_seconds" json:"block_seconds"`
	DailyLimit  int `yaml:"daily_limit" json:"daily_limit"`
}

// Policy converts a spec into a runtime policy.
func (s PolicySpec) Policy() Policy {
	return Policy{
		MaxAttempts: s.MaxAttempts,
		Window:      time.Duration(s.WindowSecs) * time.Second,
		Block:       time.Duration(s.BlockSecs) * time.Second,
		DailyLimit:  s.DailyLimit,
	}
}

// Valid reports whether the spec describes a usable policy.
func (s PolicySpec) Valid() bool {
	return s.MaxAttempts > 0 && s.WindowSecs > 0 && s.BlockSecs > 0
}

// DefaultPolicies returns the admission table copied from the observed
// production configuration.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		OpCredit:  {MaxAttempts: 30, Window: time.Minute, Block: 2 * time.Minute, DailyLimit: 2000},
		OpResolve: {MaxAttempts: 60, Window: time.Minute, Block: time.Minute},
		OpEnroll:  {MaxAttempts: 5, Window: 10 * time.Minute, Block: 30 * time.Minute, DailyLimit: 50},
		OpLogin:   {MaxAttempts: 10, Window: 5 * time.Minute, Block: 15 * time.Minute},
	}
}

// defaultFallback admits unknown operation types conservatively.
var defaultFallback = Policy{MaxAttempts: 60, Window: time.Minute, Block: time.Minute}
