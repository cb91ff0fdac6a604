package health

import "time"

const (
	DefaultProbeTimeout   = 5 * time.Second
	SlowResponseThreshold = 10 * time.Second

	DefaultCheckInterval = 15 * time.Second
	MaxBackoffSeconds    = 60 * time.Second
	MaxBackoffMultiplier = 12

	DefaultWorkerCount = 4
	DefaultQueueSize   = 256

	DefaultMaxRetries = 2
	DefaultBaseDelay  = 100 * time.Millisecond
	MaxBackoffDelay   = 2 * time.Second
)
