package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/synergybot/synergy/pkg/dataaccess/monitoring"
	"github.com/synergybot/synergy/pkg/entities"
	"github.com/synergybot/synergy/pkg/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ticketDalName = "ticket_dal"

type TicketDal interface {
	// SaveTicket saves a ticket.
	SaveTicket(ctx context.Context, ticket *entities.Ticket) error

	// GetTicket gets a ticket by its channel ID. Returns ErrNotFound when no
	// such ticket exists.
	GetTicket(ctx context.Context, guildID, channelID string) (*entities.Ticket, error)

	// DeleteTicket removes a ticket record. Deleting an absent record is a
	// no-op, not an error.
	DeleteTicket(ctx context.Context, guildID, channelID string) error

	// ListTickets lists all tickets for a guild.
	ListTickets(ctx context.Context, guildID string) ([]*entities.Ticket, error)

	// ListAllTickets lists every stored ticket across all guilds. Used to
	// rebuild the in-memory session index on startup and by the reaper.
	ListAllTickets(ctx context.Context) ([]*entities.Ticket, error)

	// DeleteGuildTickets removes every ticket record for a guild.
	DeleteGuildTickets(ctx context.Context, guildID string) error
}

type ticketDal struct {
	// l is the logger.
	l *slog.Logger

	// client is the database.
	client *mongo.Client
}

// NewTicketDal creates a new ticket data access layer.
func NewTicketDal(l *slog.Logger) TicketDal {
	l = l.With(slog.String(logging.KeyDal, ticketDalName))

	if MongoDB == nil {
		l.Warn("MongoDB is nil, this can cause a panic. Proceeding...")
	}

	return &ticketDal{
		l:      l,
		client: MongoDB,
	}
}

func (d *ticketDal) SaveTicket(ctx context.Context, ticket *entities.Ticket) error {
	// Get the ticket collection.
	collection := d.client.Database(mongoDatabase).Collection("tickets")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(ticketDalName, "save_ticket", mongoDatabase, "tickets").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(ticketDalName, "save_ticket", mongoDatabase, "tickets"))
	defer t.ObserveDuration()

	// Save the ticket.
	opts := options.Update().SetUpsert(true)
	_, err := collection.UpdateOne(ctx, bson.M{"guild_id": ticket.GuildID, "channel_id": ticket.ChannelID}, bson.M{"$set": ticket}, opts)
	if err != nil {
		return fmt.Errorf("error updating ticket: %w", err)
	}
	return nil
}

func (d *ticketDal) GetTicket(ctx context.Context, guildID, channelID string) (*entities.Ticket, error) {
	// Get the ticket collection.
	collection := d.client.Database(mongoDatabase).Collection("tickets")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(ticketDalName, "get_ticket", mongoDatabase, "tickets").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(ticketDalName, "get_ticket", mongoDatabase, "tickets"))
	defer t.ObserveDuration()

	// Get the ticket.
	var ticket entities.Ticket
	err := collection.FindOne(ctx, bson.M{
		"guild_id":   guildID,
		"channel_id": channelID,
	}).Decode(&ticket)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("ticket %s: %w", channelID, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("error getting ticket: %w", err)
	}

	return &ticket, nil
}

func (d *ticketDal) DeleteTicket(ctx context.Context, guildID, channelID string) error {
	// Get the ticket collection.
	collection := d.client.Database(mongoDatabase).Collection("tickets")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(ticketDalName, "delete_ticket", mongoDatabase, "tickets").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(ticketDalName, "delete_ticket", mongoDatabase, "tickets"))
	defer t.ObserveDuration()

	// A delete that matches nothing is fine; reaping is idempotent.
	if _, err := collection.DeleteOne(ctx, bson.M{"guild_id": guildID, "channel_id": channelID}); err != nil {
		return fmt.Errorf("error deleting ticket: %w", err)
	}
	return nil
}

func (d *ticketDal) ListTickets(ctx context.Context, guildID string) ([]*entities.Ticket, error) {
	// Get the ticket collection.
	collection := d.client.Database(mongoDatabase).Collection("tickets")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(ticketDalName, "list_tickets", mongoDatabase, "tickets").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(ticketDalName, "list_tickets", mongoDatabase, "tickets"))
	defer t.ObserveDuration()

	cursor, err := collection.Find(ctx, bson.M{"guild_id": guildID})
	if err != nil {
		return nil, fmt.Errorf("error listing tickets: %w", err)
	}

	var tickets []*entities.Ticket
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("error decoding tickets: %w", err)
	}
	return tickets, nil
}

func (d *ticketDal) ListAllTickets(ctx context.Context) ([]*entities.Ticket, error) {
	// Get the ticket collection.
	collection := d.client.Database(mongoDatabase).Collection("tickets")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(ticketDalName, "list_all_tickets", mongoDatabase, "tickets").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(ticketDalName, "list_all_tickets", mongoDatabase, "tickets"))
	defer t.ObserveDuration()

	cursor, err := collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("error listing tickets: %w", err)
	}

	var tickets []*entities.Ticket
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("error decoding tickets: %w", err)
	}
	return tickets, nil
}

func (d *ticketDal) DeleteGuildTickets(ctx context.Context, guildID string) error {
	// Get the ticket collection.
	collection := d.client.Database(mongoDatabase).Collection("tickets")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(ticketDalName, "delete_guild_tickets", mongoDatabase, "tickets").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(ticketDalName, "delete_guild_tickets", mongoDatabase, "tickets"))
	defer t.ObserveDuration()

	if _, err := collection.DeleteMany(ctx, bson.M{"guild_id": guildID}); err != nil {
		return fmt.Errorf("error deleting guild tickets: %w", err)
	}
	return nil
}
