package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/synergybot/synergy/pkg/dataaccess/monitoring"
	"github.com/synergybot/synergy/pkg/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const counterDalName = "counter_dal"

// guildCounter is the stored per-guild ticket sequence.
type guildCounter struct {
	GuildID string `bson:"guild_id"`
	Seq     int    `bson:"seq"`
}

type CounterDal interface {
	// NextTicketNumber atomically increments and returns the guild's ticket
	// sequence. Numbers are never reused or decremented; a ticket creation
	// that fails after reserving a number leaves a gap.
	NextTicketNumber(ctx context.Context, guildID string) (int, error)

	// CurrentTicketNumber returns the guild's sequence without incrementing
	// it. A guild that has never created a ticket reports zero.
	CurrentTicketNumber(ctx context.Context, guildID string) (int, error)

	// DeleteCounter removes the guild's counter.
	DeleteCounter(ctx context.Context, guildID string) error
}

type counterDal struct {
	// l is the logger.
	l *slog.Logger

	// client is the database.
	client *mongo.Client
}

// NewCounterDal creates a new counter data access layer.
func NewCounterDal(l *slog.Logger) CounterDal {
	l = l.With(slog.String(logging.KeyDal, counterDalName))

	if MongoDB == nil {
		l.Warn("MongoDB is nil, this can cause a panic. Proceeding...")
	}

	return &counterDal{
		l:      l,
		client: MongoDB,
	}
}

func (d *counterDal) NextTicketNumber(ctx context.Context, guildID string) (int, error) {
	// Get the counter collection.
	collection := d.client.Database(mongoDatabase).Collection("counters")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(counterDalName, "next_ticket_number", mongoDatabase, "counters").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(counterDalName, "next_ticket_number", mongoDatabase, "counters"))
	defer t.ObserveDuration()

	// The increment is a single findOneAndUpdate so two concurrent creations
	// can never observe the same number.
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter guildCounter
	err := collection.FindOneAndUpdate(ctx,
		bson.M{"guild_id": guildID},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("error incrementing ticket counter: %w", err)
	}

	return counter.Seq, nil
}

func (d *counterDal) CurrentTicketNumber(ctx context.Context, guildID string) (int, error) {
	// Get the counter collection.
	collection := d.client.Database(mongoDatabase).Collection("counters")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(counterDalName, "current_ticket_number", mongoDatabase, "counters").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(counterDalName, "current_ticket_number", mongoDatabase, "counters"))
	defer t.ObserveDuration()

	var counter guildCounter
	err := collection.FindOne(ctx, bson.M{"guild_id": guildID}).Decode(&counter)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("error getting ticket counter: %w", err)
	}

	return counter.Seq, nil
}

func (d *counterDal) DeleteCounter(ctx context.Context, guildID string) error {
	// Get the counter collection.
	collection := d.client.Database(mongoDatabase).Collection("counters")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(counterDalName, "delete_counter", mongoDatabase, "counters").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(counterDalName, "delete_counter", mongoDatabase, "counters"))
	defer t.ObserveDuration()

	if _, err := collection.DeleteOne(ctx, bson.M{"guild_id": guildID}); err != nil {
		return fmt.Errorf("error deleting ticket counter: %w", err)
	}
	return nil
}
