package domain

import "time"

// Compiled defaults. Most can be overridden via configuration.
const (
	// Waiting for a code
	DefaultOTPTimeout   = 30 * time.Second // Wait budget when the caller passes none
	DefaultPollInterval = 2 * time.Second  // Sleep between polling iterations

	// Provisioning
	DefaultPhoneCountry = "US" // Country used when creating a number

	// Backend request shaping
	SearchPageSize     = 10               // Items per page for message searches
	BackendHTTPTimeout = 30 * time.Second // Per-request timeout for REST backends
	NativeWaitSlack    = 5 * time.Second  // Added to HTTP timeout for server-side long polls

	// HTTP broker
	MaxWaitTimeout = 5 * time.Minute // Upper bound on a caller-requested wait

	// Graceful shutdown
	GracefulShutdownTimeout = 30 * time.Second
	ShutdownDrainDelay      = 1 * time.Second
	ShutdownHTTPTimeout     = 10 * time.Second
	ShutdownOTELTimeout     = 5 * time.Second
)
