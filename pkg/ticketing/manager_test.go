package ticketing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synergybot/synergy/pkg/entities"
)

type testEnv struct {
	mgr         *SessionManager
	sessions    *fakeSessionStore
	guilds      *fakeGuildStore
	counters    *fakeCounterStore
	provisioner *fakeProvisioner
	notifier    *fakeNotifier
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	env := &testEnv{
		sessions:    newFakeSessionStore(),
		guilds:      newFakeGuildStore(),
		counters:    newFakeCounterStore(),
		provisioner: newFakeProvisioner(),
		notifier:    &fakeNotifier{},
	}

	if cfg.CloseGrace == 0 {
		cfg.CloseGrace = time.Millisecond
	}

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.mgr = NewSessionManager(l, cfg, env.sessions, env.guilds, env.counters, env.provisioner, env.notifier)
	t.Cleanup(env.mgr.Stop)
	return env
}

func testCategory() *entities.TicketCategory {
	return &entities.TicketCategory{
		ID:             "general",
		Name:           "General Support",
		SupportRoleIDs: []string{"role-support"},
	}
}

func TestCreateSession_Blacklisted(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	guild := entities.NewGuild("g1")
	guild.Ticketing.Blacklist = []string{"u1"}
	require.NoError(t, env.guilds.SaveGuild(ctx, guild))

	_, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.ErrorIs(t, err, ErrBlacklisted)

	// No channel created, no number consumed, no record persisted.
	assert.Zero(t, env.provisioner.createdCount())
	seq, err := env.counters.CurrentTicketNumber(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, seq)
	assert.Zero(t, env.sessions.count())
}

func TestCreateSession_CapThenCloseFreesSlot(t *testing.T) {
	env := newTestEnv(t, Config{MaxOpenPerUser: 3})
	ctx := context.Background()

	var tickets []*entities.Ticket
	for i := 0; i < 3; i++ {
		ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
		require.NoError(t, err)
		tickets = append(tickets, ticket)
	}

	require.Equal(t, 1, tickets[0].TicketNumber)
	require.Equal(t, 2, tickets[1].TicketNumber)
	require.Equal(t, 3, tickets[2].TicketNumber)

	_, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.ErrorIs(t, err, ErrTooManyOpenSessions)

	// Closing a ticket frees a slot; the number is not reused.
	_, err = env.mgr.CloseSession(ctx, tickets[1].ChannelID, "staff", "resolved")
	require.NoError(t, err)

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)
	assert.Equal(t, 4, ticket.TicketNumber)
}

func TestCreateSession_ConcurrentCap(t *testing.T) {
	env := newTestEnv(t, Config{MaxOpenPerUser: 3})
	ctx := context.Background()

	const n = 10

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrTooManyOpenSessions):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, n-3, rejected)
}

func TestCreateSession_ConcurrentNumbersUnique(t *testing.T) {
	env := newTestEnv(t, Config{MaxOpenPerUser: 100})
	ctx := context.Background()

	const n = 20
	users := []string{"u1", "u2", "u3", "u4"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var numbers []int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := env.mgr.CreateSession(ctx, "g1", users[i%len(users)], testCategory(), "topic", "desc")
			require.NoError(t, err)
			mu.Lock()
			numbers = append(numbers, ticket.TicketNumber)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, num := range numbers {
		assert.False(t, seen[num], "ticket number %d assigned twice", num)
		seen[num] = true
		assert.Greater(t, num, 0)
		assert.LessOrEqual(t, num, n)
	}
	assert.Len(t, seen, n)
}

func TestCreateSession_ProvisioningFailure(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.provisioner.createErr = errBoom
	_, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")

	var provErr *ProvisioningError
	require.ErrorAs(t, err, &provErr)
	assert.Zero(t, env.sessions.count())

	// The reserved number is a gap; the next creation gets a fresh one and
	// the failed attempt does not count against the cap.
	env.provisioner.createErr = nil
	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)
	assert.Equal(t, 2, ticket.TicketNumber)
}

func TestCreateSession_PersistenceFailureTearsDownChannel(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.sessions.saveErr = errBoom
	_, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)

	// No record without a channel and no channel without a record.
	assert.Zero(t, env.sessions.count())
	assert.Equal(t, []string{"chan-1"}, env.provisioner.deletedChannels())
}

func TestClaim(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	require.NoError(t, env.mgr.Claim(ctx, ticket.ChannelID, "staff-a"))

	// A second claim is rejected and names the winner; it never overwrites.
	err = env.mgr.Claim(ctx, ticket.ChannelID, "staff-b")
	var claimed *AlreadyClaimedError
	require.ErrorAs(t, err, &claimed)
	assert.Equal(t, "staff-a", claimed.By)

	stored, err := env.sessions.GetTicket(ctx, "g1", ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, "staff-a", stored.ClaimedBy)

	require.ErrorIs(t, env.mgr.Claim(ctx, "nope", "staff-a"), ErrNotATicketChannel)
}

func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	const m = 8

	var wg sync.WaitGroup
	errs := make([]error, m)
	claimants := make([]string, m)
	for i := 0; i < m; i++ {
		claimants[i] = string(rune('a' + i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.mgr.Claim(ctx, ticket.ChannelID, claimants[i])
		}(i)
	}
	wg.Wait()

	session, ok := env.mgr.Session(ticket.ChannelID)
	require.True(t, ok)
	winner := session.ClaimedBy
	require.NotEmpty(t, winner)

	wins, losses := 0, 0
	for i, err := range errs {
		if err == nil {
			wins++
			assert.Equal(t, winner, claimants[i])
			continue
		}
		var claimed *AlreadyClaimedError
		require.ErrorAs(t, err, &claimed)
		assert.Equal(t, winner, claimed.By)
		losses++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, m-1, losses)
}

func TestAddParticipant(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	require.NoError(t, env.mgr.AddParticipant(ctx, ticket.ChannelID, "u2"))
	require.ErrorIs(t, env.mgr.AddParticipant(ctx, ticket.ChannelID, "u2"), ErrAlreadyParticipant)

	// The creator is a participant from the start.
	require.ErrorIs(t, env.mgr.AddParticipant(ctx, ticket.ChannelID, "u1"), ErrAlreadyParticipant)

	stored, err := env.sessions.GetTicket(ctx, "g1", ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, stored.Participants)
}

func TestAddParticipant_GrantFailureLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	env.provisioner.permErr = errBoom
	err = env.mgr.AddParticipant(ctx, ticket.ChannelID, "u2")

	var provErr *ProvisioningError
	require.ErrorAs(t, err, &provErr)

	stored, err := env.sessions.GetTicket(ctx, "g1", ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, stored.Participants)
}

func TestCloseSession(t *testing.T) {
	env := newTestEnv(t, Config{CloseGrace: time.Millisecond})
	ctx := context.Background()

	env.provisioner.history = []HistoryEntry{
		{Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), AuthorName: "alice", Content: "hi"},
	}

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	transcript, err := env.mgr.CloseSession(ctx, ticket.ChannelID, "staff", "resolved")
	require.NoError(t, err)
	require.NotNil(t, transcript)
	assert.Contains(t, string(transcript.Content), "[2024-01-02T10:00:00Z] alice: hi")

	// Closed metadata is set together and the record remains in the store.
	stored, err := env.sessions.GetTicket(ctx, "g1", ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, entities.TicketStatusClosed, stored.Status)
	assert.Equal(t, "staff", stored.ClosedBy)
	require.NotNil(t, stored.ClosedAt)
	assert.Equal(t, "resolved", stored.CloseReason)

	// Gone from the active index.
	_, ok := env.mgr.Session(ticket.ChannelID)
	assert.False(t, ok)

	// Closing again is a rejection, not a double close.
	_, err = env.mgr.CloseSession(ctx, ticket.ChannelID, "staff", "again")
	require.ErrorIs(t, err, ErrNotATicketChannel)

	// The channel is deleted after the grace delay and the creator notified.
	require.Eventually(t, func() bool {
		for _, id := range env.provisioner.deletedChannels() {
			if id == ticket.ChannelID {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(env.notifier.notifiedUsers()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"u1"}, env.notifier.notifiedUsers())
}

func TestCloseSession_TranscriptFailureStillCloses(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	env.provisioner.histErr = errBoom
	transcript, err := env.mgr.CloseSession(ctx, ticket.ChannelID, "staff", "resolved")
	require.NoError(t, err)
	assert.Nil(t, transcript)

	stored, err := env.sessions.GetTicket(ctx, "g1", ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, entities.TicketStatusClosed, stored.Status)
}

func TestCloseSession_PersistenceFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	env.sessions.saveErr = errBoom
	_, err = env.mgr.CloseSession(ctx, ticket.ChannelID, "staff", "resolved")

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)

	// The ticket is still open and operable.
	session, ok := env.mgr.Session(ticket.ChannelID)
	require.True(t, ok)
	assert.True(t, session.IsOpen())
	assert.Empty(t, session.ClosedBy)
	assert.Nil(t, session.ClosedAt)
}

func TestConfirmClose(t *testing.T) {
	env := newTestEnv(t, Config{ConfirmTimeout: 10 * time.Second})
	ctx := context.Background()

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env.mgr.now = func() time.Time { return now }

	require.NoError(t, env.mgr.BeginClose(ticket.ChannelID, "staff"))

	// Within the timeout the close goes through.
	now = now.Add(5 * time.Second)
	_, err = env.mgr.ConfirmClose(ctx, ticket.ChannelID, "staff", "resolved")
	require.NoError(t, err)
}

func TestConfirmClose_Expired(t *testing.T) {
	env := newTestEnv(t, Config{ConfirmTimeout: 10 * time.Second})
	ctx := context.Background()

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env.mgr.now = func() time.Time { return now }

	require.NoError(t, env.mgr.BeginClose(ticket.ChannelID, "staff"))

	// Past the timeout the confirmation lapses with no side effects.
	now = now.Add(11 * time.Second)
	_, err = env.mgr.ConfirmClose(ctx, ticket.ChannelID, "staff", "resolved")
	require.ErrorIs(t, err, ErrConfirmationExpired)

	session, ok := env.mgr.Session(ticket.ChannelID)
	require.True(t, ok)
	assert.True(t, session.IsOpen())

	// A different user cannot complete someone else's confirmation.
	require.NoError(t, env.mgr.BeginClose(ticket.ChannelID, "staff"))
	_, err = env.mgr.ConfirmClose(ctx, ticket.ChannelID, "intruder", "resolved")
	require.ErrorIs(t, err, ErrConfirmationExpired)
}

func TestRecover(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	open, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)
	closed, err := env.mgr.CreateSession(ctx, "g1", "u2", testCategory(), "topic", "desc")
	require.NoError(t, err)
	_, err = env.mgr.CloseSession(ctx, closed.ChannelID, "staff", "done")
	require.NoError(t, err)

	// Simulate a restart: a fresh manager over the same store.
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	restarted := NewSessionManager(l, Config{}, env.sessions, env.guilds, env.counters, env.provisioner, nil)
	t.Cleanup(restarted.Stop)

	count, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	session, ok := restarted.Session(open.ChannelID)
	require.True(t, ok)
	assert.Equal(t, open.TicketNumber, session.TicketNumber)
	assert.Equal(t, open.CreatorID, session.CreatorID)

	_, ok = restarted.Session(closed.ChannelID)
	assert.False(t, ok)
}

func TestGuildStats(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	bugCat := &entities.TicketCategory{ID: "bugs", Name: "Bug Report"}

	first, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)
	_, err = env.mgr.CreateSession(ctx, "g1", "u2", bugCat, "topic", "desc")
	require.NoError(t, err)
	_, err = env.mgr.CloseSession(ctx, first.ChannelID, "staff", "done")
	require.NoError(t, err)

	stats, err := env.mgr.GuildStats(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 2, stats.TotalCreated)
	assert.Equal(t, map[string]int{"General Support": 1, "Bug Report": 1}, stats.ByCategory)
}

func TestSetBlacklisted(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	changed, err := env.mgr.SetBlacklisted(ctx, "g1", "u1", true)
	require.NoError(t, err)
	assert.True(t, changed)

	// Idempotent.
	changed, err = env.mgr.SetBlacklisted(ctx, "g1", "u1", true)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.ErrorIs(t, err, ErrBlacklisted)

	changed, err = env.mgr.SetBlacklisted(ctx, "g1", "u1", false)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)
}

func TestEnsureGuild_Idempotent(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.mgr.EnsureGuild(ctx, "g1"))

	guild, err := env.guilds.GetGuildByID(ctx, "g1")
	require.NoError(t, err)
	guild.Ticketing.Blacklist = []string{"u9"}
	require.NoError(t, env.guilds.SaveGuild(ctx, guild))

	// A second ensure does not wipe existing configuration.
	require.NoError(t, env.mgr.EnsureGuild(ctx, "g1"))
	guild, err = env.guilds.GetGuildByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u9"}, guild.Ticketing.Blacklist)
}

func TestPurgeGuild(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ticket, err := env.mgr.CreateSession(ctx, "g1", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)
	keep, err := env.mgr.CreateSession(ctx, "g2", "u1", testCategory(), "topic", "desc")
	require.NoError(t, err)

	require.NoError(t, env.mgr.PurgeGuild(ctx, "g1"))

	_, ok := env.mgr.Session(ticket.ChannelID)
	assert.False(t, ok)
	assert.Zero(t, env.counters.seqs["g1"])

	// Other guilds are untouched.
	_, ok = env.mgr.Session(keep.ChannelID)
	assert.True(t, ok)
}
