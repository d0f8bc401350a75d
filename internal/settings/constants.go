package settings

// DB config keys for runtime-tunable policy.
const (
	// RateLimitOverridesKey holds per-operation rate limit overrides as a
	// JSON object keyed by operation type.
	RateLimitOverridesKey = "RATE_LIMIT_OVERRIDES"
	// SiteNameKey is the DB config key for the dashboard site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback dashboard site name.
	DefaultSiteName = "Stampdesk"
)
