// Package selector implements the Account Selector (C4): session
// stickiness, a global lock, and tier/round-robin selection over accounts
// not currently cooled down, plus the rate-limit bookkeeping that feeds it.
package selector

import (
	"errors"
	"sort"
	"time"

	"github.com/llmbridge/vendorcore/internal/account"
	"github.com/llmbridge/vendorcore/internal/ratelimit"
	"github.com/llmbridge/vendorcore/internal/tokenstore"
)

var (
	// ErrNoAccounts is returned when the live account set is empty.
	ErrNoAccounts = errors.New("selector: no accounts configured")
	// ErrAllCooled is returned when every candidate account is rate-limited
	// for the requested type. Callers should present MinWaitSeconds.
	ErrAllCooled = errors.New("selector: all accounts cooled down")
)

// Selector applies the stickiness -> global lock -> tier/round-robin
// protocol over the Token Store's live account snapshot (spec.md §4.4.1).
type Selector struct {
	store *tokenstore.Store
	state *schedState
}

func New(store *tokenstore.Store) *Selector {
	return &Selector{store: store, state: newSchedState()}
}

// Pick implements getAccountForRequest(request_type, session_id?). attempted
// holds account indices already tried during the current outbound call
// (the orchestrator's endpoint-fallback loop), and is skipped during fresh
// selection.
func (s *Selector) Pick(requestType RequestType, sessionID string, attempted map[int]bool) (*account.Account, error) {
	now := time.Now()
	snapshot := s.store.Snapshot()
	byIndex := make(map[int]*account.Account, len(snapshot))
	for _, a := range snapshot {
		byIndex[a.Index] = a
	}

	// 1. Session stickiness.
	if sessionID != "" {
		if idx, ok := s.state.getBinding(sessionID); ok {
			if a, ok := byIndex[idx]; ok && !a.Disabled && !s.state.isCooled(a.Identifier(), now) {
				if requestType != RequestImageGen {
					s.state.stampLock(a.Index, now)
				}
				return a, nil
			}
			s.state.dropBinding(sessionID)
		}
	}

	// 2. Global lock.
	if requestType != RequestImageGen {
		if idx, ok := s.state.lockedAccount(now); ok {
			if a, ok := byIndex[idx]; ok && !a.Disabled && !s.state.isCooled(a.Identifier(), now) {
				s.state.bind(sessionID, a.Index)
				return a, nil
			}
		}
	}

	// 3. Fresh selection.
	if len(snapshot) == 0 {
		return nil, ErrNoAccounts
	}

	candidates := make([]*account.Account, 0, len(snapshot))
	for _, a := range snapshot {
		if attempted[a.Index] {
			continue
		}
		if s.state.isCooled(a.Identifier(), now) {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil, ErrAllCooled
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Tier() != candidates[j].Tier() {
			return candidates[i].Tier() < candidates[j].Tier()
		}
		return candidates[i].LastUsedAt < candidates[j].LastUsedAt
	})

	cursor := s.store.Cursor()
	picked := candidates[cursor%len(candidates)]
	s.store.AdvanceCursor()

	s.state.bind(sessionID, picked.Index)
	if requestType != RequestImageGen {
		s.state.stampLock(picked.Index, now)
	}
	return picked, nil
}

// MarkRateLimited records the cooldown yielded by the Rate-Limit Parser
// against the given account (spec.md §4.4.3).
func (s *Selector) MarkRateLimited(a *account.Account, v ratelimit.Verdict) {
	s.state.markRateLimited(a.Identifier(), v, time.Now())
}

// MinWaitSeconds implements getMinWaitSeconds() (spec.md §4.4.3).
func (s *Selector) MinWaitSeconds() int {
	return s.state.minWaitSeconds(time.Now())
}

// ForgetAccount drops any rate-limit record for a removed account's
// identifier (spec.md §4.2 removeAccount, §4.4.4 Gone transition).
func (s *Selector) ForgetAccount(identifier string) {
	s.state.dropRecord(identifier)
}
