package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guardian-card/guardian-core/internal/category"
	"github.com/guardian-card/guardian-core/internal/model"
)

// MemoryStore implements Store in process memory. State is sharded per user;
// each user's state has its own mutex so users never contend.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userState
}

type userState struct {
	mu          sync.Mutex
	profile     *model.UserProfile
	spend       map[string]float64
	rules       map[string]int64
	tokens      []model.OverrideToken
	fences      []model.Geofence
	pings       []model.LocationPing
	position    *model.Position
	dwell       []time.Time
	dwellCfg    *model.DwellConfig
	obligations []model.Obligation
	audit       []model.AuditEvent
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{users: make(map[string]*userState)}
}

func (m *MemoryStore) user(id string) *userState {
	m.mu.RLock()
	u, ok := m.users[id]
	m.mu.RUnlock()
	if ok {
		return u
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok = m.users[id]; ok {
		return u
	}
	u = &userState{
		spend: make(map[string]float64),
		rules: make(map[string]int64),
	}
	m.users[id] = u
	return u
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// --- Profiles ---

func (m *MemoryStore) EnsureProfile(_ context.Context, def model.UserProfile) (model.UserProfile, error) {
	u := m.user(def.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.profile == nil {
		p := def
		u.profile = &p
	}
	return *u.profile, nil
}

func (m *MemoryStore) PutProfile(_ context.Context, p model.UserProfile) error {
	u := m.user(p.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.profile = &p
	return nil
}

// --- Spend ledger ---

func (m *MemoryStore) CategorySpend(_ context.Context, userID, cat string) (float64, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.spend[cat], nil
}

func (m *MemoryStore) AddSpend(_ context.Context, userID, cat string, amount float64) (float64, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.spend[cat] += amount
	return u.spend[cat], nil
}

func (m *MemoryStore) SpendByCategory(_ context.Context, userID string) (map[string]float64, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]float64, len(u.spend))
	for k, v := range u.spend {
		out[k] = v
	}
	return out, nil
}

// --- Budget rules ---

func (m *MemoryStore) PutRule(_ context.Context, r model.BudgetRule) error {
	u := m.user(r.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rules[category.Fold(r.Category)] = r.MonthlyLimitCents
	return nil
}

func (m *MemoryStore) MonthlyLimit(_ context.Context, userID, cat string) (int64, bool, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	limit, ok := u.rules[category.Fold(cat)]
	return limit, ok, nil
}

// --- Override tokens ---

func (m *MemoryStore) InsertToken(_ context.Context, tok model.OverrideToken) error {
	u := m.user(tok.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tokens = append(u.tokens, tok)
	return nil
}

// TakeToken removes the oldest live token for the triple. Expired tokens
// matching the triple are dropped along the way.
func (m *MemoryStore) TakeToken(_ context.Context, userID, merchant string, amountCents int64, now time.Time) (bool, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	kept := u.tokens[:0]
	found := false
	for _, tok := range u.tokens {
		if tok.Merchant == merchant && tok.AmountCents == amountCents {
			if !tok.Live(now) {
				continue
			}
			if !found {
				found = true
				continue
			}
		}
		kept = append(kept, tok)
	}
	u.tokens = kept
	return found, nil
}

func (m *MemoryStore) DeleteExpiredTokens(_ context.Context, now time.Time) (int, error) {
	m.mu.RLock()
	users := make([]*userState, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	m.mu.RUnlock()

	deleted := 0
	for _, u := range users {
		u.mu.Lock()
		kept := u.tokens[:0]
		for _, tok := range u.tokens {
			if tok.Live(now) {
				kept = append(kept, tok)
			} else {
				deleted++
			}
		}
		u.tokens = kept
		u.mu.Unlock()
	}
	return deleted, nil
}

// --- Geofences ---

func (m *MemoryStore) PutGeofence(_ context.Context, g model.Geofence) (model.Geofence, error) {
	u := m.user(g.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	for i := range u.fences {
		if u.fences[i].ID == g.ID {
			u.fences[i] = g
			return g, nil
		}
	}
	if g.Position == 0 {
		g.Position = len(u.fences) + 1
	}
	u.fences = append(u.fences, g)
	return g, nil
}

func (m *MemoryStore) ListGeofences(_ context.Context, userID string) ([]model.Geofence, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]model.Geofence, len(u.fences))
	copy(out, u.fences)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemoryStore) DeleteGeofence(_ context.Context, userID, id string) error {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	for i := range u.fences {
		if u.fences[i].ID == id {
			u.fences = append(u.fences[:i], u.fences[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// --- Location pings ---

func (m *MemoryStore) AppendPing(_ context.Context, p model.LocationPing) error {
	u := m.user(p.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pings = append(u.pings, p)
	return nil
}

func (m *MemoryStore) LatestPing(_ context.Context, userID string) (*model.LocationPing, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.pings) == 0 {
		return nil, nil
	}
	p := u.pings[len(u.pings)-1]
	return &p, nil
}

// --- Dwell state ---

func (m *MemoryStore) SwapPosition(_ context.Context, userID string, pos model.Position) (*model.Position, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	prev := u.position
	u.position = &pos
	return prev, nil
}

func (m *MemoryStore) RecordDwell(_ context.Context, userID string, at time.Time, window time.Duration) (int, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	cutoff := at.Add(-window)
	kept := u.dwell[:0]
	for _, ts := range u.dwell {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	u.dwell = append(kept, at)
	return len(u.dwell), nil
}

func (m *MemoryStore) PutDwellConfig(_ context.Context, c model.DwellConfig) error {
	u := m.user(c.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dwellCfg = &c
	return nil
}

func (m *MemoryStore) DwellConfig(_ context.Context, userID string) (*model.DwellConfig, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.dwellCfg == nil {
		return nil, nil
	}
	c := *u.dwellCfg
	return &c, nil
}

// --- Obligations ---

func (m *MemoryStore) PutObligation(_ context.Context, o model.Obligation) error {
	u := m.user(o.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()
	for i := range u.obligations {
		if u.obligations[i].EventID == o.EventID {
			u.obligations[i] = o
			return nil
		}
	}
	u.obligations = append(u.obligations, o)
	return nil
}

func (m *MemoryStore) UpcomingObligations(_ context.Context, userID string, from, to time.Time) ([]model.Obligation, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []model.Obligation
	for _, o := range u.obligations {
		if o.DueDate.Before(from) || o.DueDate.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// --- Audit journal ---

func (m *MemoryStore) AppendAudit(_ context.Context, ev model.AuditEvent) error {
	u := m.user(ev.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.audit = append(u.audit, ev)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, userID string, from, to time.Time) ([]model.AuditEvent, error) {
	u := m.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []model.AuditEvent
	for _, ev := range u.audit {
		if ev.Timestamp.Before(from) || !ev.Timestamp.Before(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
