package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel = "info"
	DefaultJSONLog  = false

	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultHeadless   = true
	DefaultWidth      = 1400
	DefaultHeight     = 900
	DefaultNavTimeout = 60 * time.Second
	DefaultOpTimeout  = 30 * time.Second

	DefaultRateLimitRPS   = 0.0 // unlimited
	DefaultRateLimitBurst = 1

	DefaultStartPage        = 1
	DefaultMaxPage          = 100
	DefaultRecycleInterval  = 10
	DefaultPageRetries      = 2
	DefaultFailureThreshold = 3
	DefaultRetryCooldown    = 5 * time.Second
	DefaultFailureCooldown  = 10 * time.Second
	DefaultSettleDelay      = 3 * time.Second
	DefaultDelayMin         = 2 * time.Second
	DefaultDelayMax         = 4 * time.Second
	DefaultShards           = 1
	DefaultMaxShards        = 8

	DefaultScrollSteps     = 150
	DefaultSnapshotStride  = 5
	DefaultStableSnapshots = 0
	DefaultStepDelay       = 100 * time.Millisecond
	DefaultFocusDelay      = 500 * time.Millisecond

	DefaultTrendingURL      = "https://api.coingecko.com/api/v3/search/trending"
	DefaultTrendingAttempts = 3
	DefaultTrendingBackoff  = 2 * time.Second
	DefaultTrendingTimeout  = 30 * time.Second

	DefaultOutputDir        = "data"
	DefaultOutputFormat     = "json"
	DefaultImageConcurrency = 5

	DefaultEnvFile = ".env"
)
