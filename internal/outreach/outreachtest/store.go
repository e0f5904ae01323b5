// Package outreachtest provides an in-memory repository.Store for tests.
package outreachtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/repository"

	"github.com/google/uuid"
)

type suppressionKey struct {
	kind  domain.IdentifierKind
	value string
}

// Store keeps leads, the ledger and configuration in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	leads       map[uuid.UUID]domain.Lead
	activities  []domain.Activity
	suppression map[suppressionKey]string
	sequences   map[uuid.UUID]domain.Sequence
	templates   map[string]domain.Template
	callLogs    []domain.CallLog
	metrics     map[string]map[string]int
	paused      bool
	nextID      int64

	// Clock stamps ledger entries. Defaults to time.Now.
	Clock func() time.Time
	// MutateHook runs inside MutateLead and RecordCall before fn; a non-nil
	// error aborts the write.
	MutateHook func(id uuid.UUID) error
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		leads:       make(map[uuid.UUID]domain.Lead),
		suppression: make(map[suppressionKey]string),
		sequences:   make(map[uuid.UUID]domain.Sequence),
		templates:   make(map[string]domain.Template),
		metrics:     make(map[string]map[string]int),
		Clock:       time.Now,
	}
}

// PutLead stores l as is.
func (s *Store) PutLead(l domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[l.ID] = l
}

// Lead returns the stored lead, panicking when missing.
func (s *Store) Lead(id uuid.UUID) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		panic("outreachtest: unknown lead " + id.String())
	}
	return l
}

// Activities returns a copy of a lead's ledger in insertion order.
func (s *Store) Activities(id uuid.UUID) []domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Activity
	for _, a := range s.activities {
		if a.LeadID == id {
			out = append(out, a)
		}
	}
	return out
}

// ActivityTypes returns the ledger types for a lead in order.
func (s *Store) ActivityTypes(id uuid.UUID) []string {
	entries := s.Activities(id)
	types := make([]string, 0, len(entries))
	for _, a := range entries {
		types = append(types, a.Type)
	}
	return types
}

func (s *Store) Suppressed(kind domain.IdentifierKind, value string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.suppression[suppressionKey{kind, value}]
	return reason, ok
}

func (s *Store) PutSuppression(kind domain.IdentifierKind, value, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppression[suppressionKey{kind, value}] = reason
}

func (s *Store) Metrics(day string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for k, v := range s.metrics[day] {
		out[k] = v
	}
	return out
}

func (s *Store) CallLogs() []domain.CallLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CallLog(nil), s.callLogs...)
}

func (s *Store) GetLead(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *Store) GetLeadByPhone(_ context.Context, phone string) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *domain.Lead
	for _, l := range s.leads {
		if l.Phone != phone {
			continue
		}
		if found == nil || l.CreatedAt.After(found.CreatedAt) {
			l := l
			found = &l
		}
	}
	if found == nil {
		return domain.Lead{}, repository.ErrNotFound
	}
	return *found, nil
}

func (s *Store) ListReadyLeads(_ context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ready []domain.Lead
	for _, l := range s.leads {
		if l.DueAt(now) {
			ready = append(ready, l)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Score != ready[j].Score {
			return ready[i].Score > ready[j].Score
		}
		if !ready[i].NextActionAt.Equal(*ready[j].NextActionAt) {
			return ready[i].NextActionAt.Before(*ready[j].NextActionAt)
		}
		return ready[i].ID.String() < ready[j].ID.String()
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready, nil
}

func (s *Store) ListDecayCandidates(_ context.Context, cutoff time.Time, minScore int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, l := range s.leads {
		if l.SequenceStatus != domain.SequenceActive || l.Score <= minScore {
			continue
		}
		if l.LastContactedAt != nil && !l.LastContactedAt.Before(cutoff) {
			continue
		}
		if l.LastReplyAt != nil && !l.LastReplyAt.Before(cutoff) {
			continue
		}
		ids = append(ids, l.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (s *Store) MutateLead(_ context.Context, id uuid.UUID, fn repository.MutateFunc) (domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MutateHook != nil {
		if err := s.MutateHook(id); err != nil {
			return domain.Transition{}, err
		}
	}
	return s.mutateLocked(id, fn)
}

// RecordCall keeps the call log only when fn succeeds, like the rolled back
// transaction would.
func (s *Store) RecordCall(_ context.Context, log domain.CallLog, fn repository.CallMutateFunc) (domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MutateHook != nil {
		if err := s.MutateHook(log.LeadID); err != nil {
			return domain.Transition{}, err
		}
	}

	same := 1
	for _, l := range s.callLogs {
		if l.LeadID == log.LeadID && l.Outcome == log.Outcome {
			same++
		}
	}
	t, err := s.mutateLocked(log.LeadID, func(cur domain.Lead) (domain.Transition, error) {
		return fn(cur, same)
	})
	if err != nil {
		return domain.Transition{}, err
	}
	s.insertCallLocked(log)
	return t, nil
}

func (s *Store) mutateLocked(id uuid.UUID, fn repository.MutateFunc) (domain.Transition, error) {
	current, ok := s.leads[id]
	if !ok {
		return domain.Transition{}, repository.ErrNotFound
	}
	t, err := fn(current)
	if err != nil {
		return domain.Transition{}, err
	}

	if t.After != current {
		t.After.UpdatedAt = s.Clock()
	}
	s.leads[id] = t.After

	entries := make([]domain.Activity, 0, len(t.Activities))
	for _, a := range t.Activities {
		a.LeadID = id
		entries = append(entries, s.appendLocked(a))
	}
	t.Activities = entries

	for _, sup := range t.Suppressions {
		key := suppressionKey{sup.Kind, sup.Value}
		if _, exists := s.suppression[key]; !exists {
			s.suppression[key] = sup.Reason
		}
	}
	return t, nil
}

func (s *Store) appendLocked(a domain.Activity) domain.Activity {
	s.nextID++
	a.ID = s.nextID
	if a.Direction == "" {
		a.Direction = domain.DirectionNone
	}
	a.CreatedAt = s.Clock()
	s.activities = append(s.activities, a)
	return a
}

func (s *Store) AppendActivity(_ context.Context, entry domain.Activity) (domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(entry), nil
}

func (s *Store) ListActivities(_ context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error) {
	entries := s.Activities(leadID)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) CountOutboundSince(_ context.Context, channel domain.ActivityChannel, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.activities {
		if a.Channel == channel && a.Direction == domain.DirectionOutbound && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) IsSuppressed(_ context.Context, kind domain.IdentifierKind, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	_, ok := s.Suppressed(kind, value)
	return ok, nil
}

func (s *Store) IsSystemPaused(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, nil
}

func (s *Store) SetSystemPaused(_ context.Context, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	return nil
}

func (s *Store) GetSequence(_ context.Context, id uuid.UUID) (domain.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if !ok {
		return domain.Sequence{}, repository.ErrNotFound
	}
	return seq, nil
}

func (s *Store) UpsertSequence(_ context.Context, seq domain.Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[seq.ID] = seq
	return nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.templates[id]
	if !ok {
		return domain.Template{}, repository.ErrNotFound
	}
	return tpl, nil
}

func (s *Store) UpsertTemplate(_ context.Context, tpl domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tpl.ID] = tpl
	return nil
}

func (s *Store) InsertCallLog(_ context.Context, log domain.CallLog) (domain.CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertCallLocked(log), nil
}

func (s *Store) insertCallLocked(log domain.CallLog) domain.CallLog {
	log.ID = int64(len(s.callLogs) + 1)
	log.CreatedAt = s.Clock()
	s.callLogs = append(s.callLogs, log)
	return log
}

func (s *Store) LatestCallSummary(_ context.Context, leadID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.callLogs) - 1; i >= 0; i-- {
		if s.callLogs[i].LeadID == leadID && s.callLogs[i].Summary != "" {
			return s.callLogs[i].Summary, nil
		}
	}
	return "", nil
}

func (s *Store) RollupDailyMetrics(_ context.Context, from, to time.Time, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, a := range s.activities {
		if !a.CreatedAt.Before(from) && a.CreatedAt.Before(to) {
			counts[a.Type]++
		}
	}
	s.metrics[day.Format("2006-01-02")] = counts
	return len(counts), nil
}
