package constants

import "time"

const (
	RequestTimeout   = 30 * time.Second
	DatabaseTimeout  = 5 * time.Second
	ClientAPITimeout = 10 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// RecentOpponentsLimit caps the distinct-opponent recency list in
	// player stats.
	RecentOpponentsLimit = 5

	RecentGamesLimit    = 20
	MaxRecentGamesLimit = 100
)

const (
	APIKeyLength = 32

	// Upload gate defaults, overridable via config.
	UploadRateLimit   = 30
	UploadRateWindow  = 1 * time.Minute
	RateLimitCapacity = 1024
)
