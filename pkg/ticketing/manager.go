package ticketing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/synergybot/synergy/pkg/custom"
	"github.com/synergybot/synergy/pkg/dataaccess"
	"github.com/synergybot/synergy/pkg/entities"
	"github.com/synergybot/synergy/pkg/logging"
	"github.com/synergybot/synergy/pkg/ticketing/monitoring"
)

// SessionManager owns the ticket lifecycle: creation under the per-user
// concurrency cap, claiming, participant management, closing with transcript
// generation, and recovery of in-flight state after a restart. The durable
// store is the source of truth; the manager's session index is a cache of the
// open tickets.
type SessionManager struct {
	// l is the logger.
	l *slog.Logger

	// cfg holds the tunables.
	cfg Config

	// sessions is the durable ticket store.
	sessions SessionStore

	// guilds is the guild configuration store.
	guilds GuildStore

	// counters allocates ticket numbers.
	counters CounterStore

	// provisioner performs the remote channel operations.
	provisioner ChannelProvisioner

	// transcripts renders channel history.
	transcripts *Generator

	// notifier delivers the close/rating prompt. May be nil.
	notifier Notifier

	// mu guards active and pending.
	mu sync.RWMutex

	// active is the index of open tickets by channel ID.
	active map[string]*entities.Ticket

	// pending counts in-flight creations per guild/user so concurrent
	// creations cannot slip past the open-ticket cap while the first is
	// still provisioning.
	pending map[string]int

	// guildMu guards guildLocks.
	guildMu sync.Mutex

	// guildLocks serialise the count-and-reserve step per guild. Independent
	// guilds progress concurrently.
	guildLocks map[string]*sync.Mutex

	// confirmMu guards confirms.
	confirmMu sync.Mutex

	// confirms are the pending close confirmations by channel ID.
	confirms map[string]pendingClose

	// now is the clock, swappable in tests.
	now func() time.Time

	// stop signals background work (delayed channel deletions) to abandon.
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// pendingClose is a close awaiting its reason/confirmation.
type pendingClose struct {
	// userID is the user that initiated the close.
	userID string

	// expires is when the confirmation lapses.
	expires time.Time
}

// NewSessionManager creates a new session manager.
func NewSessionManager(
	l *slog.Logger,
	cfg Config,
	sessions SessionStore,
	guilds GuildStore,
	counters CounterStore,
	provisioner ChannelProvisioner,
	notifier Notifier,
) *SessionManager {
	cfg = cfg.normalised()
	return &SessionManager{
		l:           l,
		cfg:         cfg,
		sessions:    sessions,
		guilds:      guilds,
		counters:    counters,
		provisioner: provisioner,
		transcripts: NewGenerator(provisioner, cfg.HistoryLimit),
		notifier:    notifier,
		active:      make(map[string]*entities.Ticket),
		pending:     make(map[string]int),
		guildLocks:  make(map[string]*sync.Mutex),
		confirms:    make(map[string]pendingClose),
		now:         time.Now,
		stop:        make(chan struct{}),
	}
}

// Recover rebuilds the open-session index from the durable store. Called once
// at startup before the manager serves any operation.
func (m *SessionManager) Recover(ctx context.Context) (int, error) {
	tickets, err := m.sessions.ListAllTickets(ctx)
	if err != nil {
		return 0, fmt.Errorf("error listing tickets: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, t := range tickets {
		if !t.IsOpen() {
			continue
		}
		m.active[t.ChannelID] = t
		count++
	}

	monitoring.OpenTickets.Set(float64(count))
	return count, nil
}

// CreateSession creates a new ticket for the user under the given category.
// Preconditions are checked in order: blacklist first, then the open-ticket
// cap. The ticket number is reserved under the guild lock before the channel
// is provisioned; a provisioning failure leaves a gap in the numbering rather
// than blocking the guild.
func (m *SessionManager) CreateSession(ctx context.Context, guildID, userID string, category *entities.TicketCategory, topic, description string) (*entities.Ticket, error) {
	guild, err := m.getOrNewGuild(ctx, guildID)
	if err != nil {
		return nil, &PersistenceError{Op: "get_guild", Err: err}
	}

	if guild.Ticketing.IsBlacklisted(userID) {
		monitoring.CreationRejections.WithLabelValues("blacklisted").Inc()
		return nil, ErrBlacklisted
	}

	// Count-and-reserve is the one serialized section per guild. It covers
	// the open-ticket cap check, the pending reservation and the counter
	// increment, but never the channel provisioning call.
	gl := m.guildLock(guildID)
	gl.Lock()

	key := pendingKey(guildID, userID)

	m.mu.Lock()
	open := m.openCountLocked(guildID, userID) + m.pending[key]
	if open >= m.cfg.MaxOpenPerUser {
		m.mu.Unlock()
		gl.Unlock()
		monitoring.CreationRejections.WithLabelValues("too_many_open").Inc()
		return nil, ErrTooManyOpenSessions
	}
	m.pending[key]++
	m.mu.Unlock()

	number, err := m.counters.NextTicketNumber(ctx, guildID)
	gl.Unlock()
	if err != nil {
		m.releasePending(key)
		return nil, &PersistenceError{Op: "next_ticket_number", Err: err}
	}

	ticket := &entities.Ticket{
		GuildID:      guildID,
		CreatorID:    userID,
		CategoryID:   category.ID,
		CategoryName: category.Name,
		TicketNumber: number,
		Status:       entities.TicketStatusOpen,
		Topic:        topic,
		Description:  description,
		Participants: []string{userID},
		CreatedAt:    custom.NewDatetime(m.now()),
	}

	parentID := category.ParentCategoryID
	if parentID == "" {
		parentID = guild.Ticketing.TicketsCategoryID
	}

	grants := []Grant{{PrincipalID: userID, CanView: true, CanWrite: true}}
	for _, roleID := range category.SupportRoleIDs {
		grants = append(grants, Grant{PrincipalID: roleID, Role: true, CanView: true, CanWrite: true})
	}

	channelID, err := m.provisioner.CreateChannel(ctx, guildID, parentID, ticket.Name(), grants)
	if err != nil {
		// The reserved number is abandoned; gaps are accepted, corrupting the
		// counter by rolling it back is not.
		m.releasePending(key)
		return nil, &ProvisioningError{Op: "create_channel", Err: err}
	}
	ticket.ChannelID = channelID

	if err := m.sessions.SaveTicket(ctx, ticket); err != nil {
		// No record without a channel, and no channel without a record: tear
		// the channel back down, best effort.
		if derr := m.provisioner.DeleteChannel(ctx, channelID); derr != nil {
			m.l.Error("Error deleting channel after failed ticket save",
				slog.String(logging.KeyChannelID, channelID),
				slog.String(logging.KeyError, derr.Error()))
		}
		m.releasePending(key)
		return nil, &PersistenceError{Op: "save_ticket", Err: err}
	}

	m.mu.Lock()
	m.active[channelID] = ticket
	m.pending[key]--
	if m.pending[key] <= 0 {
		delete(m.pending, key)
	}
	m.mu.Unlock()

	monitoring.TicketsCreated.WithLabelValues(guildID).Inc()
	monitoring.OpenTickets.Inc()
	return ticket, nil
}

// Claim records the user as the ticket's claimant. First writer wins; every
// later claim is rejected with the winner's ID and never overwrites.
func (m *SessionManager) Claim(ctx context.Context, channelID, userID string) error {
	m.mu.Lock()
	ticket, ok := m.active[channelID]
	if !ok {
		m.mu.Unlock()
		return ErrNotATicketChannel
	}
	if ticket.ClaimedBy != "" {
		winner := ticket.ClaimedBy
		m.mu.Unlock()
		return &AlreadyClaimedError{By: winner}
	}
	ticket.ClaimedBy = userID
	m.mu.Unlock()

	if err := m.sessions.SaveTicket(ctx, ticket); err != nil {
		m.mu.Lock()
		ticket.ClaimedBy = ""
		m.mu.Unlock()
		return &PersistenceError{Op: "save_ticket", Err: err}
	}
	return nil
}

// AddParticipant grants the user access to the ticket channel and records
// them as a participant. The external grant happens first; if it fails no
// state is updated.
func (m *SessionManager) AddParticipant(ctx context.Context, channelID, userID string) error {
	m.mu.RLock()
	ticket, ok := m.active[channelID]
	if !ok {
		m.mu.RUnlock()
		return ErrNotATicketChannel
	}
	if ticket.IsParticipant(userID) {
		m.mu.RUnlock()
		return ErrAlreadyParticipant
	}
	m.mu.RUnlock()

	grant := Grant{PrincipalID: userID, CanView: true, CanWrite: true}
	if err := m.provisioner.SetPermission(ctx, channelID, grant); err != nil {
		return &ProvisioningError{Op: "set_permission", Err: err}
	}

	m.mu.Lock()
	ticket, ok = m.active[channelID]
	if !ok {
		m.mu.Unlock()
		return ErrNotATicketChannel
	}
	if ticket.IsParticipant(userID) {
		m.mu.Unlock()
		return ErrAlreadyParticipant
	}
	ticket.Participants = append(ticket.Participants, userID)
	m.mu.Unlock()

	if err := m.sessions.SaveTicket(ctx, ticket); err != nil {
		m.mu.Lock()
		ticket.Participants = ticket.Participants[:len(ticket.Participants)-1]
		m.mu.Unlock()
		return &PersistenceError{Op: "save_ticket", Err: err}
	}
	return nil
}

// CloseSession closes the ticket: transcript first (best effort), then the
// durable status flip, then the rating prompt and the delayed channel
// deletion. The record stays in the store for the retention window; only the
// active index forgets it immediately.
func (m *SessionManager) CloseSession(ctx context.Context, channelID, closedBy, reason string) (*Transcript, error) {
	m.mu.RLock()
	ticket, ok := m.active[channelID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotATicketChannel
	}

	transcript, err := m.transcripts.Render(ctx, channelID, closedBy)
	if err != nil {
		// A missing transcript never blocks a close.
		m.l.Warn("Error generating transcript, closing without one",
			slog.String(logging.KeyChannelID, channelID),
			slog.String(logging.KeyError, err.Error()))
		transcript = nil
	}

	m.mu.Lock()
	ticket, ok = m.active[channelID]
	if !ok || !ticket.IsOpen() {
		m.mu.Unlock()
		return nil, ErrNotATicketChannel
	}
	ticket.Close(closedBy, reason, m.now())
	m.mu.Unlock()

	if err := m.sessions.SaveTicket(ctx, ticket); err != nil {
		m.mu.Lock()
		ticket.Reopen()
		m.mu.Unlock()
		return nil, &PersistenceError{Op: "save_ticket", Err: err}
	}

	if m.notifier != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := m.notifier.NotifyClosed(nctx, ticket); err != nil {
				m.l.Warn("Error sending close notification",
					slog.String(logging.KeyUserID, ticket.CreatorID),
					slog.String(logging.KeyError, err.Error()))
			}
		}()
	}

	m.scheduleChannelDeletion(channelID)

	m.mu.Lock()
	delete(m.active, channelID)
	m.mu.Unlock()

	monitoring.TicketsClosed.WithLabelValues(ticket.GuildID).Inc()
	monitoring.OpenTickets.Dec()
	return transcript, nil
}

// BeginClose records a pending close confirmation for the channel. The
// confirmation lapses after the configured timeout, abandoning the close with
// no side effects.
func (m *SessionManager) BeginClose(channelID, userID string) error {
	m.mu.RLock()
	_, ok := m.active[channelID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotATicketChannel
	}

	now := m.now()

	m.confirmMu.Lock()
	defer m.confirmMu.Unlock()

	// Sweep lapsed confirmations while we are here.
	for id, pc := range m.confirms {
		if now.After(pc.expires) {
			delete(m.confirms, id)
		}
	}

	m.confirms[channelID] = pendingClose{
		userID:  userID,
		expires: now.Add(m.cfg.ConfirmTimeout),
	}
	return nil
}

// ConfirmClose completes a pending close. Rejects with ErrConfirmationExpired
// when no live confirmation exists for the user.
func (m *SessionManager) ConfirmClose(ctx context.Context, channelID, userID, reason string) (*Transcript, error) {
	m.confirmMu.Lock()
	pc, ok := m.confirms[channelID]
	if ok {
		delete(m.confirms, channelID)
	}
	m.confirmMu.Unlock()

	if !ok || pc.userID != userID || m.now().After(pc.expires) {
		return nil, ErrConfirmationExpired
	}
	return m.CloseSession(ctx, channelID, userID, reason)
}

// RenderTranscript regenerates a transcript for an open ticket on demand.
func (m *SessionManager) RenderTranscript(ctx context.Context, channelID, requestedBy string) (*Transcript, error) {
	m.mu.RLock()
	_, ok := m.active[channelID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotATicketChannel
	}
	return m.transcripts.Render(ctx, channelID, requestedBy)
}

// Session returns a copy of the open ticket backing the channel.
func (m *SessionManager) Session(channelID string) (*entities.Ticket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ticket, ok := m.active[channelID]
	if !ok {
		return nil, false
	}
	snapshot := *ticket
	snapshot.Participants = append([]string(nil), ticket.Participants...)
	return &snapshot, true
}

// Stats summarise a guild's ticketing activity.
type Stats struct {
	// Open is the number of currently open tickets.
	Open int

	// TotalCreated is the lifetime number of tickets created.
	TotalCreated int

	// ByCategory is the number of retained tickets per category name.
	ByCategory map[string]int
}

// GuildStats returns the guild's ticket statistics.
func (m *SessionManager) GuildStats(ctx context.Context, guildID string) (*Stats, error) {
	total, err := m.counters.CurrentTicketNumber(ctx, guildID)
	if err != nil {
		return nil, &PersistenceError{Op: "current_ticket_number", Err: err}
	}

	tickets, err := m.sessions.ListTickets(ctx, guildID)
	if err != nil {
		return nil, &PersistenceError{Op: "list_tickets", Err: err}
	}

	stats := &Stats{
		TotalCreated: total,
		ByCategory:   make(map[string]int),
	}
	for _, t := range tickets {
		stats.ByCategory[t.CategoryName]++
	}

	m.mu.RLock()
	for _, t := range m.active {
		if t.GuildID == guildID {
			stats.Open++
		}
	}
	m.mu.RUnlock()

	return stats, nil
}

// EnsureGuild initialises an empty per-guild configuration if none exists.
// Idempotent.
func (m *SessionManager) EnsureGuild(ctx context.Context, guildID string) error {
	_, err := m.guilds.GetGuildByID(ctx, guildID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, dataaccess.ErrNotFound) {
		return &PersistenceError{Op: "get_guild", Err: err}
	}

	if err := m.guilds.SaveGuild(ctx, entities.NewGuild(guildID)); err != nil {
		return &PersistenceError{Op: "save_guild", Err: err}
	}
	return nil
}

// PurgeGuild removes all state for a guild the bot has left: configuration,
// ticket records, counter, and any open sessions in the index.
func (m *SessionManager) PurgeGuild(ctx context.Context, guildID string) error {
	m.mu.Lock()
	for id, t := range m.active {
		if t.GuildID == guildID {
			delete(m.active, id)
			monitoring.OpenTickets.Dec()
		}
	}
	m.mu.Unlock()

	if err := m.sessions.DeleteGuildTickets(ctx, guildID); err != nil {
		return &PersistenceError{Op: "delete_guild_tickets", Err: err}
	}
	if err := m.counters.DeleteCounter(ctx, guildID); err != nil {
		return &PersistenceError{Op: "delete_counter", Err: err}
	}
	if err := m.guilds.DeleteGuild(ctx, guildID); err != nil {
		return &PersistenceError{Op: "delete_guild", Err: err}
	}
	return nil
}

// SetBlacklisted adds or removes the user from the guild's ticket blacklist.
// Returns whether the blacklist changed.
func (m *SessionManager) SetBlacklisted(ctx context.Context, guildID, userID string, blacklisted bool) (bool, error) {
	guild, err := m.getOrNewGuild(ctx, guildID)
	if err != nil {
		return false, &PersistenceError{Op: "get_guild", Err: err}
	}

	already := guild.Ticketing.IsBlacklisted(userID)
	if already == blacklisted {
		return false, nil
	}

	if blacklisted {
		guild.Ticketing.Blacklist = append(guild.Ticketing.Blacklist, userID)
	} else {
		bl := guild.Ticketing.Blacklist[:0]
		for _, id := range guild.Ticketing.Blacklist {
			if id != userID {
				bl = append(bl, id)
			}
		}
		guild.Ticketing.Blacklist = bl
	}

	if err := m.guilds.SaveGuild(ctx, guild); err != nil {
		return false, &PersistenceError{Op: "save_guild", Err: err}
	}
	return true, nil
}

// Stop abandons pending delayed deletions and waits for background work to
// finish.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}

// scheduleChannelDeletion deletes the channel after the close grace period.
func (m *SessionManager) scheduleChannelDeletion(channelID string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		timer := time.NewTimer(m.cfg.CloseGrace)
		defer timer.Stop()

		select {
		case <-m.stop:
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := m.provisioner.DeleteChannel(ctx, channelID); err != nil {
			m.l.Error("Error deleting closed ticket channel",
				slog.String(logging.KeyChannelID, channelID),
				slog.String(logging.KeyError, err.Error()))
		}
	}()
}

// openCountLocked counts open tickets created by the user in the guild.
// Caller must hold mu.
func (m *SessionManager) openCountLocked(guildID, userID string) int {
	count := 0
	for _, t := range m.active {
		if t.GuildID == guildID && t.CreatorID == userID {
			count++
		}
	}
	return count
}

// pendingKey keys the in-flight creation reservations per guild and user.
func pendingKey(guildID, userID string) string {
	return guildID + "/" + userID
}

// releasePending drops an in-flight creation reservation.
func (m *SessionManager) releasePending(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[key]--
	if m.pending[key] <= 0 {
		delete(m.pending, key)
	}
}

// guildLock returns the mutex serialising creations for the guild.
func (m *SessionManager) guildLock(guildID string) *sync.Mutex {
	m.guildMu.Lock()
	defer m.guildMu.Unlock()

	gl, ok := m.guildLocks[guildID]
	if !ok {
		gl = new(sync.Mutex)
		m.guildLocks[guildID] = gl
	}
	return gl
}

func (m *SessionManager) getOrNewGuild(ctx context.Context, guildID string) (*entities.Guild, error) {
	guild, err := m.guilds.GetGuildByID(ctx, guildID)
	if errors.Is(err, dataaccess.ErrNotFound) {
		return entities.NewGuild(guildID), nil
	} else if err != nil {
		return nil, fmt.Errorf("error getting guild: %w", err)
	}
	return guild, nil
}
