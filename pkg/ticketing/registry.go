package ticketing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/synergybot/synergy/pkg/dataaccess"
	"github.com/synergybot/synergy/pkg/entities"
)

// CategoryRegistry is the per-guild catalogue of ticket categories. It is a
// read-mostly lookup; mutations are admin-only and have no effect on tickets
// that were already created (tickets denormalise the category at creation).
type CategoryRegistry struct {
	// l is the logger.
	l *slog.Logger

	// guilds is the guild configuration store.
	guilds GuildStore
}

// NewCategoryRegistry creates a new category registry.
func NewCategoryRegistry(l *slog.Logger, guilds GuildStore) *CategoryRegistry {
	return &CategoryRegistry{
		l:      l,
		guilds: guilds,
	}
}

// ListCategories returns the guild's categories in insertion order, capped at
// the select menu's 25-option limit.
func (r *CategoryRegistry) ListCategories(ctx context.Context, guildID string) ([]entities.TicketCategory, error) {
	guild, err := r.guilds.GetGuildByID(ctx, guildID)
	if errors.Is(err, dataaccess.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("error getting guild: %w", err)
	}

	cats := guild.Ticketing.Categories
	if len(cats) > entities.MaxCategories {
		cats = cats[:entities.MaxCategories]
	}
	return cats, nil
}

// Category returns the category with the given ID.
func (r *CategoryRegistry) Category(ctx context.Context, guildID, categoryID string) (*entities.TicketCategory, error) {
	cats, err := r.ListCategories(ctx, guildID)
	if err != nil {
		return nil, err
	}

	for i := range cats {
		if cats[i].ID == categoryID {
			return &cats[i], nil
		}
	}
	return nil, ErrUnknownCategory
}

// EnsureDefaults seeds the default categories for a guild that has none and
// returns the resulting list. Idempotent.
func (r *CategoryRegistry) EnsureDefaults(ctx context.Context, guildID string) ([]entities.TicketCategory, error) {
	guild, err := r.getOrNewGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}

	if len(guild.Ticketing.Categories) > 0 {
		return guild.Ticketing.Categories, nil
	}

	guild.Ticketing.Categories = entities.DefaultCategories()
	if err := r.guilds.SaveGuild(ctx, guild); err != nil {
		return nil, fmt.Errorf("error saving guild: %w", err)
	}
	return guild.Ticketing.Categories, nil
}

// UpsertCategory adds the category, or replaces it in place when a category
// with the same ID already exists. Open tickets are unaffected.
func (r *CategoryRegistry) UpsertCategory(ctx context.Context, guildID string, cat entities.TicketCategory) error {
	if len(cat.Questions) > entities.MaxQuestions {
		return ErrTooManyQuestions
	}

	guild, err := r.getOrNewGuild(ctx, guildID)
	if err != nil {
		return err
	}

	replaced := false
	for i := range guild.Ticketing.Categories {
		if guild.Ticketing.Categories[i].ID == cat.ID {
			guild.Ticketing.Categories[i] = cat
			replaced = true
			break
		}
	}

	if !replaced {
		if len(guild.Ticketing.Categories) >= entities.MaxCategories {
			return ErrTooManyCategories
		}
		guild.Ticketing.Categories = append(guild.Ticketing.Categories, cat)
	}

	if err := r.guilds.SaveGuild(ctx, guild); err != nil {
		return fmt.Errorf("error saving guild: %w", err)
	}
	return nil
}

// RemoveCategory removes the category with the given ID.
func (r *CategoryRegistry) RemoveCategory(ctx context.Context, guildID, categoryID string) error {
	guild, err := r.getOrNewGuild(ctx, guildID)
	if err != nil {
		return err
	}

	cats := guild.Ticketing.Categories
	for i := range cats {
		if cats[i].ID == categoryID {
			guild.Ticketing.Categories = append(cats[:i], cats[i+1:]...)
			if err := r.guilds.SaveGuild(ctx, guild); err != nil {
				return fmt.Errorf("error saving guild: %w", err)
			}
			return nil
		}
	}
	return ErrUnknownCategory
}

func (r *CategoryRegistry) getOrNewGuild(ctx context.Context, guildID string) (*entities.Guild, error) {
	guild, err := r.guilds.GetGuildByID(ctx, guildID)
	if errors.Is(err, dataaccess.ErrNotFound) {
		return entities.NewGuild(guildID), nil
	} else if err != nil {
		return nil, fmt.Errorf("error getting guild: %w", err)
	}
	return guild, nil
}
