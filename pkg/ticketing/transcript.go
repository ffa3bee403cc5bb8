package ticketing

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Transcript is a rendered, durable copy of a ticket channel's history.
type Transcript struct {
	// FileName is the suggested file name for the artifact.
	FileName string

	// Content is the rendered transcript.
	Content []byte

	// GeneratedBy identifies what produced the transcript.
	GeneratedBy string

	// GeneratedAt is when the transcript was produced.
	GeneratedAt time.Time

	// Messages is the number of history entries included.
	Messages int
}

// Generator renders channel history into transcripts.
type Generator struct {
	// provisioner is used to pull the channel history.
	provisioner ChannelProvisioner

	// limit caps how many messages are pulled.
	limit int

	// now is the clock, swappable in tests.
	now func() time.Time
}

// NewGenerator creates a transcript generator.
func NewGenerator(provisioner ChannelProvisioner, limit int) *Generator {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Generator{
		provisioner: provisioner,
		limit:       limit,
		now:         time.Now,
	}
}

// Render pulls the ordered history of the channel and formats each entry as
// "[timestamp] author: content". Entries with empty content are omitted
// rather than failing the render.
func (g *Generator) Render(ctx context.Context, channelID, generatedBy string) (*Transcript, error) {
	history, err := g.provisioner.FetchHistory(ctx, channelID, g.limit, true)
	if err != nil {
		return nil, fmt.Errorf("error fetching channel history: %w", err)
	}

	var sb strings.Builder
	count := 0
	for _, entry := range history {
		if entry.Content == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n",
			entry.Timestamp.UTC().Format(time.RFC3339), entry.AuthorName, entry.Content))
		count++
	}

	return &Transcript{
		FileName:    fmt.Sprintf("transcript-%s.txt", channelID),
		Content:     []byte(sb.String()),
		GeneratedBy: generatedBy,
		GeneratedAt: g.now().UTC(),
		Messages:    count,
	}, nil
}
