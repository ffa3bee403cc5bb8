package ticketing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/synergybot/synergy/pkg/dataaccess"
	"github.com/synergybot/synergy/pkg/entities"
)

// fakeSessionStore is an in-memory SessionStore. Records are copied on the
// way in and out so tests observe persistence semantics rather than shared
// pointers.
type fakeSessionStore struct {
	mu      sync.Mutex
	tickets map[string]entities.Ticket
	saveErr error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{tickets: make(map[string]entities.Ticket)}
}

func storeKey(guildID, channelID string) string {
	return guildID + "/" + channelID
}

func (s *fakeSessionStore) SaveTicket(_ context.Context, ticket *entities.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *ticket
	cp.Participants = append([]string(nil), ticket.Participants...)
	s.tickets[storeKey(ticket.GuildID, ticket.ChannelID)] = cp
	return nil
}

func (s *fakeSessionStore) GetTicket(_ context.Context, guildID, channelID string) (*entities.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[storeKey(guildID, channelID)]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", channelID, dataaccess.ErrNotFound)
	}
	cp := t
	return &cp, nil
}

func (s *fakeSessionStore) DeleteTicket(_ context.Context, guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, storeKey(guildID, channelID))
	return nil
}

func (s *fakeSessionStore) ListTickets(_ context.Context, guildID string) ([]*entities.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Ticket
	for _, t := range s.tickets {
		if t.GuildID == guildID {
			cp := t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) ListAllTickets(_ context.Context) ([]*entities.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Ticket
	for _, t := range s.tickets {
		cp := t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeSessionStore) DeleteGuildTickets(_ context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.tickets {
		if t.GuildID == guildID {
			delete(s.tickets, k)
		}
	}
	return nil
}

func (s *fakeSessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

// fakeGuildStore is an in-memory GuildStore.
type fakeGuildStore struct {
	mu     sync.Mutex
	guilds map[string]entities.Guild
}

func newFakeGuildStore() *fakeGuildStore {
	return &fakeGuildStore{guilds: make(map[string]entities.Guild)}
}

func (s *fakeGuildStore) SaveGuild(_ context.Context, guild *entities.Guild) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[guild.ID] = *guild
	return nil
}

func (s *fakeGuildStore) GetGuildByID(_ context.Context, id string) (*entities.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[id]
	if !ok {
		return nil, fmt.Errorf("guild %s: %w", id, dataaccess.ErrNotFound)
	}
	cp := g
	return &cp, nil
}

func (s *fakeGuildStore) DeleteGuild(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, id)
	return nil
}

// fakeCounterStore is an in-memory CounterStore with atomic increments.
type fakeCounterStore struct {
	mu      sync.Mutex
	seqs    map[string]int
	nextErr error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{seqs: make(map[string]int)}
}

func (s *fakeCounterStore) NextTicketNumber(_ context.Context, guildID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextErr != nil {
		return 0, s.nextErr
	}
	s.seqs[guildID]++
	return s.seqs[guildID], nil
}

func (s *fakeCounterStore) CurrentTicketNumber(_ context.Context, guildID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[guildID], nil
}

func (s *fakeCounterStore) DeleteCounter(_ context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seqs, guildID)
	return nil
}

// fakeProvisioner is an in-memory ChannelProvisioner.
type fakeProvisioner struct {
	mu        sync.Mutex
	nextID    int
	created   []string
	deleted   []string
	grants    map[string][]Grant
	history   []HistoryEntry
	createErr error
	permErr   error
	histErr   error
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{grants: make(map[string][]Grant)}
}

func (p *fakeProvisioner) CreateChannel(_ context.Context, _, _, _ string, grants []Grant) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	p.nextID++
	id := fmt.Sprintf("chan-%d", p.nextID)
	p.created = append(p.created, id)
	p.grants[id] = append([]Grant(nil), grants...)
	return id, nil
}

func (p *fakeProvisioner) SetPermission(_ context.Context, channelID string, grant Grant) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permErr != nil {
		return p.permErr
	}
	p.grants[channelID] = append(p.grants[channelID], grant)
	return nil
}

func (p *fakeProvisioner) DeleteChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, channelID)
	return nil
}

func (p *fakeProvisioner) FetchHistory(_ context.Context, _ string, _ int, _ bool) ([]HistoryEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.histErr != nil {
		return nil, p.histErr
	}
	return append([]HistoryEntry(nil), p.history...), nil
}

func (p *fakeProvisioner) createdCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.created)
}

func (p *fakeProvisioner) deletedChannels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deleted...)
}

// fakeNotifier records close notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	notified []string
	err      error
}

func (n *fakeNotifier) NotifyClosed(_ context.Context, ticket *entities.Ticket) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notified = append(n.notified, ticket.CreatorID)
	return nil
}

func (n *fakeNotifier) notifiedUsers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notified...)
}

var errBoom = errors.New("boom")
