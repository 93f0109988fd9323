package governor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemInvocations is an in-memory InvocationStore. It backs tests and
// ephemeral setups; production wiring uses the sqlite store module.
type MemInvocations struct {
	mu     sync.Mutex
	nextID int64
	rows   []memRow
}

type memRow struct {
	id       int64
	tool     string
	userID   string
	at       time.Time
	executed bool
}

func NewMemInvocations() *MemInvocations {
	return &MemInvocations{}
}

// checkLocked applies the rate limit, then the global and per-user
// cooldowns, measured at res.At.
func (s *MemInvocations) checkLocked(res Reservation, lim Limits) error {
	if lim.MaxPerHour > 0 {
		count := 0
		windowStart := res.At.Add(-RateWindow)
		for _, r := range s.rows {
			if r.tool != res.Tool || !r.at.After(windowStart) {
				continue
			}
			if lim.UserScoped && r.userID != res.UserID {
				continue
			}
			count++
		}
		if count >= lim.MaxPerHour {
			return &RateLimitError{Tool: res.Tool, Limit: lim.MaxPerHour, Window: RateWindow, PerUser: lim.UserScoped}
		}
	}
	for _, r := range s.rows {
		if r.tool != res.Tool {
			continue
		}
		if lim.GlobalCooldown > 0 {
			if rem := lim.GlobalCooldown - res.At.Sub(r.at); rem > 0 {
				return &CooldownError{Tool: res.Tool, Scope: "global", Remaining: rem}
			}
		}
		if lim.PerUserCooldown > 0 && r.userID == res.UserID {
			if rem := lim.PerUserCooldown - res.At.Sub(r.at); rem > 0 {
				return &CooldownError{Tool: res.Tool, Scope: "user", Remaining: rem}
			}
		}
	}
	return nil
}

func (s *MemInvocations) Check(_ context.Context, res Reservation, lim Limits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(res, lim)
}

func (s *MemInvocations) Reserve(_ context.Context, res Reservation, lim Limits) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(res, lim); err != nil {
		return 0, err
	}
	s.nextID++
	s.rows = append(s.rows, memRow{
		id:     s.nextID,
		tool:   res.Tool,
		userID: res.UserID,
		at:     res.At,
	})
	return s.nextID, nil
}

func (s *MemInvocations) MarkExecuted(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].id == id {
			s.rows[i].executed = true
			return nil
		}
	}
	return nil
}

func (s *MemInvocations) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var dropped int64
	for _, r := range s.rows {
		if r.at.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return dropped, nil
}

// MemPendings is an in-memory PendingStore.
type MemPendings struct {
	mu       sync.Mutex
	pendings map[string]PendingInvocation
}

func NewMemPendings() *MemPendings {
	return &MemPendings{pendings: make(map[string]PendingInvocation)}
}

func (s *MemPendings) Create(_ context.Context, p PendingInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendings[p.ID] = p
	return nil
}

func (s *MemPendings) Get(_ context.Context, id string) (PendingInvocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pendings[id]
	if !ok {
		return PendingInvocation{}, ErrPendingNotFound
	}
	return p, nil
}

func (s *MemPendings) Decide(_ context.Context, id, decidedBy string, approved bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pendings[id]
	if !ok {
		return ErrPendingNotFound
	}
	if p.State != PendingOpen {
		return ErrPendingDecided
	}
	if approved {
		p.State = PendingApproved
	} else {
		p.State = PendingDenied
	}
	p.DecidedBy = decidedBy
	p.DecidedAt = at
	s.pendings[id] = p
	return nil
}

func (s *MemPendings) ListOpen(_ context.Context, kind PendingKind) ([]PendingInvocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PendingInvocation
	for _, p := range s.pendings {
		if p.State != PendingOpen {
			continue
		}
		if kind != "" && p.Kind != kind {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemPendings) MarkExecuted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pendings[id]
	if !ok {
		return ErrPendingNotFound
	}
	p.State = PendingExecuted
	s.pendings[id] = p
	return nil
}

func (s *MemPendings) ExpireBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.pendings {
		if p.State == PendingOpen && p.CreatedAt.Before(cutoff) {
			p.State = PendingExpired
			s.pendings[id] = p
			n++
		}
	}
	return n, nil
}
