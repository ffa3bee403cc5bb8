package logging

const (
	// KeyError is the slog attribute key for errors.
	KeyError = "err"

	// KeyDal is the slog attribute key for the data access layer name.
	KeyDal = "dal"

	// KeyAppName is the slog attribute key for the application name.
	KeyAppName = "app"

	// KeyGuildID is the slog attribute key for a guild ID.
	KeyGuildID = "guild_id"

	// KeyChannelID is the slog attribute key for a channel ID.
	KeyChannelID = "channel_id"

	// KeyUserID is the slog attribute key for a user ID.
	KeyUserID = "user_id"

	// KeySignal is the slog attribute key for an OS signal.
	KeySignal = "signal"
)
