package ticketing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorRender(t *testing.T) {
	p := newFakeProvisioner()
	p.history = []HistoryEntry{
		{Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), AuthorID: "1", AuthorName: "alice", Content: "hello"},
		{Timestamp: time.Date(2024, 1, 2, 10, 1, 0, 0, time.UTC), AuthorID: "2", AuthorName: "bob", Content: ""},
		{Timestamp: time.Date(2024, 1, 2, 10, 2, 0, 0, time.UTC), AuthorID: "1", AuthorName: "alice", Content: "anyone there?"},
	}

	g := NewGenerator(p, 100)
	g.now = func() time.Time { return time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC) }

	transcript, err := g.Render(context.Background(), "chan-1", "staff")
	require.NoError(t, err)

	assert.Equal(t, "transcript-chan-1.txt", transcript.FileName)
	assert.Equal(t, "staff", transcript.GeneratedBy)
	assert.Equal(t, time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC), transcript.GeneratedAt)

	// Empty-content entries (attachments, embeds) are omitted.
	assert.Equal(t, 2, transcript.Messages)
	assert.Equal(t,
		"[2024-01-02T10:00:00Z] alice: hello\n[2024-01-02T10:02:00Z] alice: anyone there?\n",
		string(transcript.Content))
}

func TestGeneratorRender_FetchFailure(t *testing.T) {
	p := newFakeProvisioner()
	p.histErr = errBoom

	g := NewGenerator(p, 100)
	_, err := g.Render(context.Background(), "chan-1", "staff")
	require.Error(t, err)
}

func TestGeneratorRender_EmptyChannel(t *testing.T) {
	p := newFakeProvisioner()

	g := NewGenerator(p, 100)
	transcript, err := g.Render(context.Background(), "chan-1", "staff")
	require.NoError(t, err)
	assert.Zero(t, transcript.Messages)
	assert.Empty(t, transcript.Content)
}
