package ticketing

import (
	"context"
	"time"

	"github.com/synergybot/synergy/pkg/entities"
)

// Grant describes one principal's access to a ticket channel.
type Grant struct {
	// PrincipalID is the user or role being granted access.
	PrincipalID string

	// Role is whether the principal is a role rather than a user.
	Role bool

	// CanView is whether the principal can see the channel.
	CanView bool

	// CanWrite is whether the principal can send messages in the channel.
	CanWrite bool
}

// HistoryEntry is one message of a channel's history, as pulled for a
// transcript.
type HistoryEntry struct {
	// Timestamp is when the message was sent.
	Timestamp time.Time

	// AuthorID is the ID of the message author.
	AuthorID string

	// AuthorName is the display name of the message author.
	AuthorName string

	// Content is the message text.
	Content string
}

// ChannelProvisioner creates, permissions and deletes the channels backing
// tickets on the remote platform. All calls are fallible remote calls with no
// implicit retry; in particular a retried CreateChannel could create a
// duplicate channel, so the manager never retries creation.
type ChannelProvisioner interface {
	// CreateChannel creates a channel under the given parent category with
	// the given initial grants and returns its ID.
	CreateChannel(ctx context.Context, guildID, parentCategoryID, name string, grants []Grant) (string, error)

	// SetPermission applies a single grant to an existing channel.
	SetPermission(ctx context.Context, channelID string, grant Grant) error

	// DeleteChannel deletes a channel.
	DeleteChannel(ctx context.Context, channelID string) error

	// FetchHistory returns up to maxMessages of the channel's history.
	FetchHistory(ctx context.Context, channelID string, maxMessages int, oldestFirst bool) ([]HistoryEntry, error)
}

// Notifier delivers best-effort notifications outside the ticket channel.
// Failures are logged and swallowed; they never fail the triggering
// operation.
type Notifier interface {
	// NotifyClosed tells the ticket creator their ticket was closed and asks
	// for a rating.
	NotifyClosed(ctx context.Context, ticket *entities.Ticket) error
}
