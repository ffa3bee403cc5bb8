package ticketing

import "time"

const (
	// DefaultMaxOpenPerUser is the number of tickets a user can have open in
	// a guild at the same time.
	DefaultMaxOpenPerUser = 3

	// DefaultRetentionWindow is how long closed ticket records are kept
	// before the reaper erases them.
	DefaultRetentionWindow = 7 * 24 * time.Hour

	// DefaultReapInterval is how often the reaper scans for expired records.
	DefaultReapInterval = time.Hour

	// DefaultCloseGrace is the delay between closing a ticket and deleting
	// its channel.
	DefaultCloseGrace = 5 * time.Second

	// DefaultConfirmTimeout is how long a pending close confirmation remains
	// valid.
	DefaultConfirmTimeout = 10 * time.Second

	// DefaultHistoryLimit is the maximum number of messages pulled into a
	// transcript.
	DefaultHistoryLimit = 1000
)

// Config holds the tunables for the session manager and reaper.
type Config struct {
	// MaxOpenPerUser caps concurrently open tickets per user per guild.
	MaxOpenPerUser int

	// RetentionWindow is how long closed records are retained.
	RetentionWindow time.Duration

	// ReapInterval is the reaper's period.
	ReapInterval time.Duration

	// CloseGrace is the delay before the channel of a closed ticket is
	// deleted.
	CloseGrace time.Duration

	// ConfirmTimeout bounds how long a destructive action waits for its
	// confirmation.
	ConfirmTimeout time.Duration

	// HistoryLimit caps transcript length in messages.
	HistoryLimit int
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		MaxOpenPerUser:  DefaultMaxOpenPerUser,
		RetentionWindow: DefaultRetentionWindow,
		ReapInterval:    DefaultReapInterval,
		CloseGrace:      DefaultCloseGrace,
		ConfirmTimeout:  DefaultConfirmTimeout,
		HistoryLimit:    DefaultHistoryLimit,
	}
}

// normalised fills any zero fields with their defaults.
func (c Config) normalised() Config {
	def := DefaultConfig()
	if c.MaxOpenPerUser <= 0 {
		c.MaxOpenPerUser = def.MaxOpenPerUser
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = def.RetentionWindow
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = def.ReapInterval
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = def.CloseGrace
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = def.ConfirmTimeout
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	return c
}
