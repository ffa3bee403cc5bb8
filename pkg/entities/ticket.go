package entities

import (
	"fmt"
	"time"

	"github.com/synergybot/synergy/pkg/custom"
)

// TicketStatus is the lifecycle state of a ticket. A ticket only ever moves
// from open to closed; closed is terminal.
type TicketStatus string

const (
	// TicketStatusOpen is the status of a ticket that is still active.
	TicketStatusOpen TicketStatus = "open"

	// TicketStatusClosed is the status of a ticket that has been closed.
	TicketStatusClosed TicketStatus = "closed"
)

// Ticket is a support ticket. A ticket is bound one-to-one to the channel it
// was provisioned with; the channel ID doubles as the session identifier.
type Ticket struct {
	// ChannelID is the ID of the channel backing the ticket. It is the unique
	// identifier of the ticket and never repeats across the guild's history.
	ChannelID string `json:"channel_id" bson:"channel_id"`

	// GuildID is the ID of the guild that the ticket is in.
	GuildID string `json:"guild_id" bson:"guild_id"`

	// CreatorID is the ID of the user that created the ticket.
	CreatorID string `json:"creator_id" bson:"creator_id"`

	// CategoryID is the ID of the intake category the ticket was created
	// under, denormalised at creation time. Category edits do not change
	// existing tickets.
	CategoryID string `json:"category_id" bson:"category_id"`

	// CategoryName is the display name of the category at creation time.
	CategoryName string `json:"category_name" bson:"category_name"`

	// TicketNumber is the per-guild monotonic sequence number. It is assigned
	// at creation and never reused.
	TicketNumber int `json:"ticket_number" bson:"ticket_number"`

	// Status is the lifecycle state of the ticket.
	Status TicketStatus `json:"status" bson:"status"`

	// Topic is the short summary given at creation.
	Topic string `json:"topic" bson:"topic"`

	// Description is the longer intake description given at creation.
	Description string `json:"description" bson:"description"`

	// Participants are the users with access to the ticket. The creator is
	// always present and the set never shrinks automatically.
	Participants []string `json:"participants" bson:"participants"`

	// ClaimedBy is the ID of the support user that claimed the ticket. Set at
	// most once while the ticket is open.
	ClaimedBy string `json:"claimed_by,omitempty" bson:"claimed_by,omitempty"`

	// ClosedBy is the ID of the user that closed the ticket. Set together
	// with ClosedAt, never on its own.
	ClosedBy string `json:"closed_by,omitempty" bson:"closed_by,omitempty"`

	// CloseReason is the free-text reason given when closing.
	CloseReason string `json:"close_reason,omitempty" bson:"close_reason,omitempty"`

	// CreatedAt is the time that the ticket was created.
	CreatedAt custom.Datetime `json:"created_at" bson:"created_at"`

	// ClosedAt is the time that the ticket was closed.
	ClosedAt *custom.Datetime `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// Name returns the channel name for the ticket, e.g. "bug-report-0042".
func (t *Ticket) Name() string {
	return fmt.Sprintf("%s-%04d", Slug(t.CategoryName), t.TicketNumber)
}

// IsOpen reports whether the ticket is still open.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketStatusOpen
}

// IsParticipant reports whether the user has been granted access to the ticket.
func (t *Ticket) IsParticipant(userID string) bool {
	for _, p := range t.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Close marks the ticket as closed. ClosedBy and ClosedAt are set together so
// the record is never observable with one but not the other.
func (t *Ticket) Close(closedBy, reason string, at time.Time) {
	closedAt := custom.NewDatetime(at)
	t.Status = TicketStatusClosed
	t.ClosedBy = closedBy
	t.ClosedAt = &closedAt
	t.CloseReason = reason
}

// Reopen reverts a close. Used to restore the in-memory record when
// persisting the closed state fails.
func (t *Ticket) Reopen() {
	t.Status = TicketStatusOpen
	t.ClosedBy = ""
	t.ClosedAt = nil
	t.CloseReason = ""
}
