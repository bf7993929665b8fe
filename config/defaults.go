package config

import "time"

// Defaults mirror a local, low-latency setup.
const (
	DefaultPort         = 49160
	DefaultPollInterval = 1 * time.Second
	DefaultReadBufSize  = 1000

	DefaultVolumeStepDB = 5
	DefaultSeekStep     = 5 * time.Second

	DefaultMPDNetwork = "tcp"
	DefaultMPDAddr    = "127.0.0.1:6600"

	DefaultSSHPort     = 22
	DefaultConnTimeout = 30 * time.Second
)
