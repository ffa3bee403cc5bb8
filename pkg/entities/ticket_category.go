package entities

import (
	"strconv"
	"strings"
)

const (
	// MaxCategories is the maximum number of categories a guild can define.
	// The category select menu caps out at 25 options.
	MaxCategories = 25

	// MaxQuestions is the maximum number of intake questions per category.
	// Modals cap out at 5 inputs.
	MaxQuestions = 5

	// DefaultCategoryColor is the brand colour used when a category does not
	// define one.
	DefaultCategoryColor = "#5865F2"
)

// TicketCategory defines an intake pathway for tickets. Categories are owned
// by the guild administrators; tickets denormalise the category at creation
// so later edits do not affect them.
type TicketCategory struct {
	// ID is the identifier of the category, unique within the guild.
	ID string `json:"id" bson:"id"`

	// Name is the display name of the category.
	Name string `json:"name" bson:"name"`

	// Description is shown under the category in the select menu.
	Description string `json:"description" bson:"description"`

	// Emoji is the icon glyph shown next to the category.
	Emoji string `json:"emoji" bson:"emoji"`

	// Color is the brand colour of the category as a hex string, e.g. "#ED4245".
	Color string `json:"color" bson:"color"`

	// ParentCategoryID is the optional channel category that tickets created
	// under this intake category are grouped into.
	ParentCategoryID string `json:"parent_category_id,omitempty" bson:"parent_category_id,omitempty"`

	// Questions are the custom intake questions asked before the ticket is
	// created. At most MaxQuestions.
	Questions []CustomQuestion `json:"questions,omitempty" bson:"questions,omitempty"`

	// SupportRoleIDs are the roles granted access to tickets of this category.
	SupportRoleIDs []string `json:"support_role_ids,omitempty" bson:"support_role_ids,omitempty"`

	// PingRoleIDs are the roles mentioned when a ticket of this category is
	// created.
	PingRoleIDs []string `json:"ping_role_ids,omitempty" bson:"ping_role_ids,omitempty"`
}

// CustomQuestion is a single intake question. Pure value type.
type CustomQuestion struct {
	// Question is the question text.
	Question string `json:"question" bson:"question"`

	// Placeholder is the placeholder text shown in the empty input.
	Placeholder string `json:"placeholder,omitempty" bson:"placeholder,omitempty"`

	// Required is whether the question must be answered.
	Required bool `json:"required" bson:"required"`

	// LongAnswer is whether the question takes a paragraph-style answer.
	LongAnswer bool `json:"long_answer" bson:"long_answer"`
}

// Slug normalises a display name into a channel-name friendly form.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	if s == "" {
		s = "ticket"
	}
	return s
}

// ColorInt parses the category colour into the integer form embeds expect.
// Falls back to the default colour on malformed input.
func (c *TicketCategory) ColorInt() int {
	col := strings.TrimPrefix(c.Color, "#")
	if col == "" {
		col = strings.TrimPrefix(DefaultCategoryColor, "#")
	}

	v, err := strconv.ParseInt(col, 16, 32)
	if err != nil {
		v, _ = strconv.ParseInt(strings.TrimPrefix(DefaultCategoryColor, "#"), 16, 32)
	}
	return int(v)
}

// DefaultCategories are the categories seeded for a guild that has not
// configured any of its own.
func DefaultCategories() []TicketCategory {
	return []TicketCategory{
		{
			ID:          "general",
			Name:        "General Support",
			Description: "Get help with general inquiries",
			Emoji:       "\U0001F4AC",
			Color:       "#5865F2",
		},
		{
			ID:          "bugs",
			Name:        "Bug Report",
			Description: "Report a bug or issue",
			Emoji:       "\U0001F41B",
			Color:       "#ED4245",
		},
		{
			ID:          "other",
			Name:        "Other",
			Description: "Something else",
			Emoji:       "\U0001F4DD",
			Color:       "#FEE75C",
		},
	}
}
