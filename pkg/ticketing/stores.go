package ticketing

import (
	"context"

	"github.com/synergybot/synergy/pkg/entities"
)

// SessionStore is the durable store of ticket records. It is the single
// source of truth; the manager's in-memory index is a cache rebuilt from it
// on startup.
type SessionStore interface {
	// SaveTicket saves a ticket.
	SaveTicket(ctx context.Context, ticket *entities.Ticket) error

	// GetTicket gets a ticket by its channel ID.
	GetTicket(ctx context.Context, guildID, channelID string) (*entities.Ticket, error)

	// DeleteTicket removes a ticket record. Deleting an absent record is a
	// no-op.
	DeleteTicket(ctx context.Context, guildID, channelID string) error

	// ListTickets lists all tickets for a guild.
	ListTickets(ctx context.Context, guildID string) ([]*entities.Ticket, error)

	// ListAllTickets lists every stored ticket across all guilds.
	ListAllTickets(ctx context.Context) ([]*entities.Ticket, error)

	// DeleteGuildTickets removes every ticket record for a guild.
	DeleteGuildTickets(ctx context.Context, guildID string) error
}

// GuildStore is the durable store of per-guild configuration (categories,
// blacklist, panel bindings).
type GuildStore interface {
	// SaveGuild saves a guild.
	SaveGuild(ctx context.Context, guild *entities.Guild) error

	// GetGuildByID gets a guild by ID.
	GetGuildByID(ctx context.Context, id string) (*entities.Guild, error)

	// DeleteGuild removes a guild's configuration.
	DeleteGuild(ctx context.Context, id string) error
}

// CounterStore allocates per-guild ticket numbers.
type CounterStore interface {
	// NextTicketNumber atomically increments and returns the guild's ticket
	// sequence.
	NextTicketNumber(ctx context.Context, guildID string) (int, error)

	// CurrentTicketNumber returns the guild's sequence without incrementing.
	CurrentTicketNumber(ctx context.Context, guildID string) (int, error)

	// DeleteCounter removes the guild's counter.
	DeleteCounter(ctx context.Context, guildID string) error
}
