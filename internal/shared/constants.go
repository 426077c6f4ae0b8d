package shared

import "time"

// Server Configuration
const (
	DefaultListenAddr      = ":80"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultProxyBodyLimit  = "64M"
)

// Exchange Bounds
const (
	DefaultMaxBodyBytes      = 16 << 20
	DefaultMaxBufferDuration = 30 * time.Second
	DefaultInferenceTimeout  = 2 * time.Second
	DefaultChunkSize         = 64 << 10
)

// Annotation
const (
	DefaultLabelHeader      = "x-predicted-label"
	DefaultConfidenceHeader = "x-predicted-confidence"
	PoweredByHeader         = "Powered-By"
	PoweredByValue          = "inference-filter"
	DefaultInputName        = "input"
)

// Cache Configuration
const (
	PredictionCacheTTL = 10 * time.Minute
	CacheOpTimeout     = 50 * time.Millisecond
)

// Bucket Configuration
const (
	BucketFlushInterval = 1 * time.Minute
	BucketRetryDelay    = 30 * time.Second
	MaxFlushRetries     = 3
	MaxBucketSize       = 500
)
