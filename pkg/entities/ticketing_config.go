package entities

// TicketingConfig is the per-guild ticketing configuration.
type TicketingConfig struct {
	// Enabled is whether ticketing is enabled.
	Enabled bool `json:"enabled" bson:"enabled"`

	// PanelChannelID is the ID of the channel that the ticket panel lives in.
	PanelChannelID string `json:"panel_channel_id,omitempty" bson:"panel_channel_id,omitempty"`

	// PanelMessageID is the ID of the ticket panel message.
	PanelMessageID string `json:"panel_message_id,omitempty" bson:"panel_message_id,omitempty"`

	// LogChannelID is the ID of the channel transcripts and ratings are
	// logged to.
	LogChannelID string `json:"log_channel_id,omitempty" bson:"log_channel_id,omitempty"`

	// TicketsCategoryID is the default channel category that ticket channels
	// are created under when the intake category does not bind one.
	TicketsCategoryID string `json:"tickets_category_id,omitempty" bson:"tickets_category_id,omitempty"`

	// Categories are the intake categories, in insertion order.
	Categories []TicketCategory `json:"categories,omitempty" bson:"categories,omitempty"`

	// Blacklist are the users barred from creating tickets.
	Blacklist []string `json:"blacklist,omitempty" bson:"blacklist,omitempty"`
}

// IsBlacklisted reports whether the user is barred from creating tickets.
func (c *TicketingConfig) IsBlacklisted(userID string) bool {
	for _, id := range c.Blacklist {
		if id == userID {
			return true
		}
	}
	return false
}

// Category returns the intake category with the given ID.
func (c *TicketingConfig) Category(id string) (*TicketCategory, bool) {
	for i := range c.Categories {
		if c.Categories[i].ID == id {
			return &c.Categories[i], true
		}
	}
	return nil, false
}
