package selector

import (
	"sync"
	"time"

	"github.com/llmbridge/vendorcore/internal/ratelimit"
)

// RequestType distinguishes image generation, which bypasses the global
// lock and uses a separate quota pool in practice (spec.md §4.4.1).
type RequestType string

const (
	RequestClaude   RequestType = "claude"
	RequestGemini   RequestType = "gemini"
	RequestImageGen RequestType = "image_gen"
)

// State is an account's view from the selector (spec.md §4.4.4).
type State string

const (
	StateReady    State = "ready"
	StateCooled   State = "cooled"
	StateDisabled State = "disabled"
	StateGone     State = "gone"
)

// rateLimitRecord is a process-local cooldown stamp keyed by account
// identifier (spec.md §3 RateLimitRecord).
type rateLimitRecord struct {
	resetAt      time.Time
	retryAfterMs int64
	detectedAt   time.Time
	reason       ratelimit.Reason
}

func (r rateLimitRecord) active(now time.Time) bool {
	return r.resetAt.After(now)
}

// sessionBinding maps an opaque session fingerprint to an account index.
type sessionBinding struct {
	accountIndex int
}

// globalLock is active iff now - stampedAt < 60s (spec.md §3).
type globalLock struct {
	accountIndex int
	stampedAt    time.Time
	active       bool
}

const globalLockWindow = 60 * time.Second

// schedState holds the process-local, non-persisted scheduling state owned
// by the Account Selector: rate-limit records, session bindings, the
// global lock (spec.md §3 ownership rules).
type schedState struct {
	mu sync.Mutex

	rateLimits map[string]rateLimitRecord // identifier -> record
	bindings   map[string]sessionBinding  // session id -> binding
	lock       globalLock
}

func newSchedState() *schedState {
	return &schedState{
		rateLimits: make(map[string]rateLimitRecord),
		bindings:   make(map[string]sessionBinding),
	}
}

// isCooled reports whether identifier has an active cooldown for any
// request type (the record is not partitioned by request type in the
// base spec — it covers the account as a whole).
func (s *schedState) isCooled(identifier string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rateLimits[identifier]
	if !ok {
		return false
	}
	if !rec.active(now) {
		delete(s.rateLimits, identifier)
		return false
	}
	return true
}

// markRateLimited records a cooldown, overwriting any prior record for the
// identifier (spec.md §4.4.3).
func (s *schedState) markRateLimited(identifier string, v ratelimit.Verdict, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimits[identifier] = rateLimitRecord{
		resetAt:      now.Add(v.RetryAfter),
		retryAfterMs: v.RetryAfter.Milliseconds(),
		detectedAt:   now,
		reason:       v.Reason,
	}
}

// dropRecord removes a rate-limit record, e.g. when its account is removed.
func (s *schedState) dropRecord(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rateLimits, identifier)
}

// minWaitSeconds implements spec.md §4.4.3 getMinWaitSeconds(): minimum
// remaining wait across all cooled accounts, defaulting to 60 when none.
func (s *schedState) minWaitSeconds(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	min := -1
	for _, rec := range s.rateLimits {
		if !rec.active(now) {
			continue
		}
		remaining := int(rec.resetAt.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		if min == -1 || remaining < min {
			min = remaining
		}
	}
	if min == -1 {
		return 60
	}
	return min
}

func (s *schedState) getBinding(sessionID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[sessionID]
	if !ok {
		return 0, false
	}
	return b.accountIndex, true
}

func (s *schedState) bind(sessionID string, accountIndex int) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[sessionID] = sessionBinding{accountIndex: accountIndex}
}

func (s *schedState) dropBinding(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, sessionID)
}

func (s *schedState) lockedAccount(now time.Time) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lock.active {
		return 0, false
	}
	if now.Sub(s.lock.stampedAt) >= globalLockWindow {
		s.lock.active = false
		return 0, false
	}
	return s.lock.accountIndex, true
}

func (s *schedState) stampLock(accountIndex int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lock = globalLock{accountIndex: accountIndex, stampedAt: now, active: true}
}
