package ticketing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synergybot/synergy/pkg/entities"
)

func newTestRegistry() (*CategoryRegistry, *fakeGuildStore) {
	guilds := newFakeGuildStore()
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCategoryRegistry(l, guilds), guilds
}

func TestEnsureDefaults(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	cats, err := r.EnsureDefaults(ctx, "g1")
	require.NoError(t, err)
	require.NotEmpty(t, cats)

	// Idempotent: a second call returns the same set without reseeding.
	again, err := r.EnsureDefaults(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, cats, again)

	// Seeding does not clobber a guild that already has categories.
	require.NoError(t, r.UpsertCategory(ctx, "g2", entities.TicketCategory{ID: "custom", Name: "Custom"}))
	cats, err = r.EnsureDefaults(ctx, "g2")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "custom", cats[0].ID)
}

func TestUpsertCategory(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, r.UpsertCategory(ctx, "g1", entities.TicketCategory{ID: "bugs", Name: "Bugs"}))

	cat, err := r.Category(ctx, "g1", "bugs")
	require.NoError(t, err)
	assert.Equal(t, "Bugs", cat.Name)

	// Same ID replaces in place.
	require.NoError(t, r.UpsertCategory(ctx, "g1", entities.TicketCategory{ID: "bugs", Name: "Bug Reports"}))

	cats, err := r.ListCategories(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Bug Reports", cats[0].Name)
}

func TestUpsertCategory_CategoryCap(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	for i := 0; i < entities.MaxCategories; i++ {
		id := fmt.Sprintf("cat-%d", i)
		require.NoError(t, r.UpsertCategory(ctx, "g1", entities.TicketCategory{ID: id, Name: id}))
	}

	err := r.UpsertCategory(ctx, "g1", entities.TicketCategory{ID: "overflow", Name: "Overflow"})
	require.ErrorIs(t, err, ErrTooManyCategories)

	// Replacing an existing category is still allowed at the cap.
	require.NoError(t, r.UpsertCategory(ctx, "g1", entities.TicketCategory{ID: "cat-0", Name: "Renamed"}))
}

func TestUpsertCategory_QuestionCap(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	questions := make([]entities.CustomQuestion, entities.MaxQuestions+1)
	for i := range questions {
		questions[i] = entities.CustomQuestion{Question: fmt.Sprintf("q%d", i)}
	}

	err := r.UpsertCategory(ctx, "g1", entities.TicketCategory{ID: "bugs", Name: "Bugs", Questions: questions})
	require.ErrorIs(t, err, ErrTooManyQuestions)

	require.NoError(t, r.UpsertCategory(ctx, "g1", entities.TicketCategory{
		ID:        "bugs",
		Name:      "Bugs",
		Questions: questions[:entities.MaxQuestions],
	}))
}

func TestRemoveCategory(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, r.UpsertCategory(ctx, "g1", entities.TicketCategory{ID: "bugs", Name: "Bugs"}))
	require.NoError(t, r.RemoveCategory(ctx, "g1", "bugs"))

	_, err := r.Category(ctx, "g1", "bugs")
	require.ErrorIs(t, err, ErrUnknownCategory)

	require.ErrorIs(t, r.RemoveCategory(ctx, "g1", "bugs"), ErrUnknownCategory)
}

func TestListCategories_UnknownGuild(t *testing.T) {
	r, _ := newTestRegistry()

	cats, err := r.ListCategories(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, cats)
}
