package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synergybot/synergy/pkg/custom"
	"go.mongodb.org/mongo-driver/bson"
)

func TestTicketName(t *testing.T) {
	ticket := &Ticket{CategoryName: "Bug Report", TicketNumber: 42}
	assert.Equal(t, "bug-report-0042", ticket.Name())

	ticket = &Ticket{CategoryName: "General Support", TicketNumber: 7}
	assert.Equal(t, "general-support-0007", ticket.Name())
}

func TestTicketClose(t *testing.T) {
	ticket := &Ticket{
		ChannelID: "chan-1",
		Status:    TicketStatusOpen,
	}
	require.True(t, ticket.IsOpen())

	at := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	ticket.Close("staff", "resolved", at)

	assert.False(t, ticket.IsOpen())
	assert.Equal(t, "staff", ticket.ClosedBy)
	require.NotNil(t, ticket.ClosedAt)
	assert.Equal(t, at, ticket.ClosedAt.Time())
	assert.Equal(t, "resolved", ticket.CloseReason)

	ticket.Reopen()
	assert.True(t, ticket.IsOpen())
	assert.Empty(t, ticket.ClosedBy)
	assert.Nil(t, ticket.ClosedAt)
	assert.Empty(t, ticket.CloseReason)
}

func TestTicketIsParticipant(t *testing.T) {
	ticket := &Ticket{Participants: []string{"u1", "u2"}}
	assert.True(t, ticket.IsParticipant("u1"))
	assert.False(t, ticket.IsParticipant("u3"))
}

func TestTicketBsonRoundTrip(t *testing.T) {
	closedAt := custom.NewDatetime(time.Date(2024, 2, 2, 18, 0, 0, 0, time.UTC))
	ticket := &Ticket{
		ChannelID:    "chan-1",
		GuildID:      "g1",
		CreatorID:    "u1",
		CategoryID:   "bugs",
		CategoryName: "Bug Report",
		TicketNumber: 3,
		Status:       TicketStatusClosed,
		Topic:        "crash on start",
		Description:  "it crashes",
		Participants: []string{"u1", "u2"},
		ClaimedBy:    "staff",
		ClosedBy:     "staff",
		CloseReason:  "fixed",
		CreatedAt:    custom.NewDatetime(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)),
		ClosedAt:     &closedAt,
	}

	data, err := bson.Marshal(ticket)
	require.NoError(t, err)

	got := new(Ticket)
	require.NoError(t, bson.Unmarshal(data, got))
	assert.Equal(t, ticket, got)
}

func TestTicketBsonRoundTrip_OpenTicket(t *testing.T) {
	ticket := &Ticket{
		ChannelID:    "chan-2",
		GuildID:      "g1",
		CreatorID:    "u1",
		CategoryID:   "general",
		CategoryName: "General Support",
		TicketNumber: 1,
		Status:       TicketStatusOpen,
		Participants: []string{"u1"},
		CreatedAt:    custom.NewDatetime(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)),
	}

	data, err := bson.Marshal(ticket)
	require.NoError(t, err)

	// Optional close metadata is absent from the document when unset.
	doc := bson.M{}
	require.NoError(t, bson.Unmarshal(data, &doc))
	assert.NotContains(t, doc, "closed_by")
	assert.NotContains(t, doc, "closed_at")
	assert.NotContains(t, doc, "claimed_by")

	got := new(Ticket)
	require.NoError(t, bson.Unmarshal(data, got))
	assert.Equal(t, ticket, got)
}
