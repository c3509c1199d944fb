package cli

import "time"

// Default values for CLI flags and configurations.
const (
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// MaxPasswordAttempts is the number of password prompts before giving up.
	MaxPasswordAttempts = 3
	// EnvPrefix prefixes the environment variables read for credentials, e.g. KARIDF_USER.
	EnvPrefix = "KARIDF"
	// MinArchiveVersion is the oldest archive release the catalog queries are known to work with.
	MinArchiveVersion = "1.7"
	// CloseTimeout bounds the session close after the run, including after an interrupt.
	CloseTimeout = 30 * time.Second
)
