package messages

const (
	// ErrUserErrorProcessing is the generic message returned to a user when an internal error occurs.
	ErrUserErrorProcessing = "Something went wrong whilst processing your request. Please try again later."

	// ErrNotAdministrator is returned when a non-administrator uses an admin command.
	ErrNotAdministrator = "You must be an administrator to use this command."

	// ErrNotTicketChannel is returned when a ticket command is used outside a ticket channel.
	ErrNotTicketChannel = "This is not a ticket channel."
)
