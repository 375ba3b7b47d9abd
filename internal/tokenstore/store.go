// Package tokenstore implements the Token Store (C2): persists accounts
// through the host secret store, caches decoded accounts in memory, and
// serializes refreshes one-per-account via golang.org/x/sync/singleflight.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/llmbridge/vendorcore/internal/account"
	"github.com/llmbridge/vendorcore/internal/oauth"
	"github.com/llmbridge/vendorcore/internal/secretstore"
)

// Sentinel errors surfaced to callers (spec.md §7-equivalent error taxonomy).
var (
	ErrReauthenticationRequired = errors.New("tokenstore: reauthentication required")
	ErrAccountNotFound          = errors.New("tokenstore: account not found")
)

// DriverResolver returns the OAuth driver that owns refresh for a given
// account's provider ("antigravity" or "qwen").
type DriverResolver func(provider string) oauth.Driver

// Exporter is the optional S3-compatible backup sink (internal/secretstore/backup).
// Never on the write critical path: Snapshot failures are only logged.
type Exporter interface {
	Snapshot(ctx context.Context, data []byte)
}

// auditEvent is an in-memory diagnostic record; never persisted, never
// required for correctness (SPEC_FULL.md §3 AuditEvent).
type auditEvent struct {
	At   time.Time
	Op   string
	Info string
}

const auditRingSize = 200

// Store is the Token Store (C2). One instance owns the entire account set
// for the process; all mutation goes through its exported methods.
type Store struct {
	mu       sync.Mutex
	backend  secretstore.Store
	drivers  DriverResolver
	exporter Exporter

	accounts []*account.Account
	cursor   int

	refreshGroup singleflight.Group

	audit    []auditEvent
	auditPos int
}

// New constructs an uninitialized Store; call Initialize before use.
func New(backend secretstore.Store, drivers DriverResolver, exporter Exporter) *Store {
	return &Store{
		backend:  backend,
		drivers:  drivers,
		exporter: exporter,
		audit:    make([]auditEvent, 0, auditRingSize),
	}
}

// Initialize decodes the secret-store blob, filters disabled entries out of
// the in-memory set, and reassigns dense indices starting at 0 (spec.md
// §4.2 initialize).
//
// Disabled accounts are retained on disk (unmarshalBlob preserves them) but
// excluded here — the selector must never see them.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.backend.Get(ctx, secretstore.BlobKey)
	if err != nil && !errors.Is(err, secretstore.ErrNotFound) {
		return fmt.Errorf("tokenstore: load blob: %w", err)
	}

	all, cursor, err := unmarshalBlob(raw)
	if err != nil {
		return err
	}

	live := make([]*account.Account, 0, len(all))
	for _, a := range all {
		if a.Disabled {
			continue
		}
		live = append(live, a)
	}
	for i, a := range live {
		a.Index = i
	}

	s.accounts = live
	s.cursor = cursor
	s.record("initialize", fmt.Sprintf("%d accounts loaded", len(live)))
	return nil
}

// Snapshot returns a read-only copy of the live (non-disabled) accounts,
// for the selector's fresh-selection pass.
func (s *Store) Snapshot() []*account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*account.Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Cursor returns the current round-robin cursor value.
func (s *Store) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// AdvanceCursor bumps the round-robin cursor by one (unbounded; taken
// modulo snapshot length at read time per spec.md §4.4.2).
func (s *Store) AdvanceCursor() {
	s.mu.Lock()
	s.cursor++
	s.mu.Unlock()
}

// AddAccount implements spec.md §4.2 addAccount(tokens). If an existing
// account matches by email or refresh token, its tokens are updated and
// disabled is cleared; else a new account is appended.
func (s *Store) AddAccount(ctx context.Context, provider string, tokens oauth.Tokens, tier string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, cursor, err := s.loadAllLocked(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	var matched *account.Account
	for _, a := range all {
		if (tokens.Email != "" && a.Email == tokens.Email) || a.RefreshToken == tokens.RefreshToken {
			matched = a
			break
		}
	}

	if matched != nil {
		matched.Provider = provider
		matched.AccessToken = tokens.AccessToken
		matched.RefreshToken = tokens.RefreshToken
		matched.ExpiresAt = tokens.ExpiresAt
		matched.ProjectID = tokens.ProjectID
		matched.Disabled = false
		matched.DisabledReason = ""
		if tier != "" {
			matched.SubscriptionTier = tier
		}
	} else {
		matched = &account.Account{
			Index:            len(all),
			Provider:         provider,
			Email:            tokens.Email,
			ProjectID:        tokens.ProjectID,
			RefreshToken:     tokens.RefreshToken,
			AccessToken:      tokens.AccessToken,
			ExpiresAt:        tokens.ExpiresAt,
			AddedAt:          now,
			LastUsedAt:       0,
			SubscriptionTier: tier,
		}
		all = append(all, matched)
	}

	if err := s.persistLocked(ctx, all, cursor); err != nil {
		return nil, err
	}
	s.reindexLiveLocked(all, cursor)
	s.record("addAccount", matched.Identifier())
	return matched, nil
}

// RemoveAccount implements spec.md §4.2 removeAccount(index): remove,
// re-index densely, clamp the cursor. The caller (selector) is responsible
// for dropping any RateLimitRecord keyed by the removed identifier — this
// method returns the removed account's identifier so the caller can do so.
func (s *Store) RemoveAccount(ctx context.Context, index int) (identifier string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, cursor, err := s.loadAllLocked(ctx)
	if err != nil {
		return "", err
	}

	pos := resolveLivePosition(all, index)
	if pos < 0 {
		return "", ErrAccountNotFound
	}
	identifier = all[pos].Identifier()
	all = append(all[:pos], all[pos+1:]...)

	newLen := 0
	for _, a := range all {
		if !a.Disabled {
			newLen++
		}
	}
	if newLen == 0 {
		cursor = 0
	} else {
		cursor = cursor % newLen
	}

	if err := s.persistLocked(ctx, all, cursor); err != nil {
		return "", err
	}
	s.reindexLiveLocked(all, cursor)
	s.record("removeAccount", identifier)
	return identifier, nil
}

// DisableAccount implements spec.md §4.2 disableAccount(index, reason).
func (s *Store) DisableAccount(ctx context.Context, index int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, cursor, err := s.loadAllLocked(ctx)
	if err != nil {
		return err
	}

	pos := resolveLivePosition(all, index)
	if pos < 0 {
		return ErrAccountNotFound
	}
	all[pos].Disabled = true
	all[pos].DisabledReason = reason

	if err := s.persistLocked(ctx, all, cursor); err != nil {
		return err
	}
	s.reindexLiveLocked(all, cursor)
	s.record("disableAccount", fmt.Sprintf("index=%d reason=%s", index, reason))
	return nil
}

// GetValidAccessToken implements spec.md §4.2 getValidAccessToken(account):
// refreshes (single-flight per account index) if the token is absent or
// expired. On refresh failure the account is left intact and
// ErrReauthenticationRequired is returned.
func (s *Store) GetValidAccessToken(ctx context.Context, acc *account.Account) (string, error) {
	if acc.AccessToken != "" && !oauth.IsTokenExpired(acc.ExpiresAt, oauth.RefreshBuffer) {
		return acc.AccessToken, nil
	}

	key := fmt.Sprintf("%d", acc.Index)
	v, err, _ := s.refreshGroup.Do(key, func() (interface{}, error) {
		return s.refresh(ctx, acc)
	})
	if err != nil {
		log.WithError(err).WithField("account", acc.Identifier()).Warn("tokenstore: refresh failed")
		return "", ErrReauthenticationRequired
	}
	return v.(string), nil
}

// ForceRefresh bypasses the expiry check and always performs a refresh,
// still deduplicated via the per-account single-flight group. Used by the
// orchestrator's 401 retry path (spec.md §4.7 step 4c).
func (s *Store) ForceRefresh(ctx context.Context, acc *account.Account) (string, error) {
	key := fmt.Sprintf("%d", acc.Index)
	v, err, _ := s.refreshGroup.Do(key, func() (interface{}, error) {
		return s.refresh(ctx, acc)
	})
	if err != nil {
		log.WithError(err).WithField("account", acc.Identifier()).Warn("tokenstore: forced refresh failed")
		return "", ErrReauthenticationRequired
	}
	return v.(string), nil
}

func (s *Store) refresh(ctx context.Context, acc *account.Account) (string, error) {
	driver := s.drivers(acc.Provider)
	if driver == nil {
		return "", fmt.Errorf("tokenstore: no driver for provider %q", acc.Provider)
	}

	tokens, err := driver.Refresh(acc.RefreshToken, acc.ProjectID)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidGrant) {
			if disableErr := s.DisableAccount(ctx, acc.Index, "refresh token revoked"); disableErr != nil {
				log.WithError(disableErr).WithField("account", acc.Identifier()).Warn("tokenstore: failed to disable account after invalid_grant")
			}
		}
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, cursor, loadErr := s.loadAllLocked(ctx)
	if loadErr != nil {
		return "", loadErr
	}
	pos := resolveLivePosition(all, acc.Index)
	if pos < 0 {
		return "", ErrAccountNotFound
	}
	a := all[pos]
	a.AccessToken = tokens.AccessToken
	a.RefreshToken = tokens.RefreshToken
	a.ExpiresAt = tokens.ExpiresAt
	a.LastUsedAt = time.Now().UnixMilli()
	acc.AccessToken = tokens.AccessToken
	acc.RefreshToken = tokens.RefreshToken
	acc.ExpiresAt = tokens.ExpiresAt
	acc.LastUsedAt = a.LastUsedAt

	if err := s.persistLocked(ctx, all, cursor); err != nil {
		return "", err
	}
	s.reindexLiveLocked(all, cursor)
	s.record("refresh", acc.Identifier())
	return tokens.AccessToken, nil
}

// Touch updates last_used_at for the given account and persists — called by
// the selector on every successful pick (stickiness, global lock, fresh
// selection all touch the chosen account).
func (s *Store) Touch(ctx context.Context, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Index == index {
			a.LastUsedAt = time.Now().UnixMilli()
			break
		}
	}
	// Best-effort persist; last_used_at drift on failure doesn't violate
	// any invariant, so this is logged rather than propagated.
	all, cursor, err := s.loadAllLocked(ctx)
	if err != nil {
		log.WithError(err).Debug("tokenstore: touch reload failed")
		return
	}
	pos := resolveLivePosition(all, index)
	if pos < 0 {
		log.WithField("index", index).Debug("tokenstore: touch found no live account at index")
		return
	}
	all[pos].LastUsedAt = time.Now().UnixMilli()
	if err := s.persistLocked(ctx, all, cursor); err != nil {
		log.WithError(err).Debug("tokenstore: touch persist failed")
	}
}

// ToStorageBlob implements spec.md §4.2 toStorageBlob(): serialize to the
// documented external format (see §6).
func (s *Store) ToStorageBlob(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, cursor, err := s.loadAllLocked(ctx)
	if err != nil {
		return nil, err
	}
	return marshalBlob(all, cursor)
}

// loadAllLocked reloads the full (disabled-inclusive) account set from the
// backend so mutation operations act on the authoritative on-disk order,
// not just the filtered in-memory snapshot. Caller holds s.mu.
func (s *Store) loadAllLocked(ctx context.Context) ([]*account.Account, int, error) {
	raw, err := s.backend.Get(ctx, secretstore.BlobKey)
	if err != nil {
		if errors.Is(err, secretstore.ErrNotFound) {
			return nil, s.cursor, nil
		}
		return nil, 0, fmt.Errorf("tokenstore: load blob: %w", err)
	}
	return unmarshalBlob(raw)
}

// persistLocked writes the full account set back to the backend — the
// persistence barrier that MUST happen before any mutating operation
// returns success (spec.md §4.2). Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context, all []*account.Account, cursor int) error {
	data, err := marshalBlob(all, cursor)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, secretstore.BlobKey, data); err != nil {
		return fmt.Errorf("tokenstore: persist blob: %w", err)
	}
	if s.exporter != nil {
		s.exporter.Snapshot(ctx, data)
	}
	return nil
}

// reindexLiveLocked rebuilds the in-memory live set from the authoritative
// all-accounts slice, reassigning dense indices. Caller holds s.mu.
func (s *Store) reindexLiveLocked(all []*account.Account, cursor int) {
	live := make([]*account.Account, 0, len(all))
	for _, a := range all {
		if a.Disabled {
			continue
		}
		live = append(live, a)
	}
	for i, a := range live {
		a.Index = i
	}
	s.accounts = live
	s.cursor = cursor
}

// resolveLivePosition translates a live index (the dense, non-disabled-only
// numbering reindexLiveLocked assigns and that callers hand around) into its
// position inside all, the raw on-disk-ordered slice loadAllLocked returns.
// It mirrors reindexLiveLocked's own filtering so the two numbering schemes
// never diverge, even when a disabled account sits at a lower on-disk
// position than a live one. Returns -1 if liveIndex is out of range.
func resolveLivePosition(all []*account.Account, liveIndex int) int {
	seen := 0
	for i, a := range all {
		if a.Disabled {
			continue
		}
		if seen == liveIndex {
			return i
		}
		seen++
	}
	return -1
}

func (s *Store) record(op, info string) {
	ev := auditEvent{At: time.Now(), Op: op, Info: info}
	if len(s.audit) < auditRingSize {
		s.audit = append(s.audit, ev)
		return
	}
	s.audit[s.auditPos] = ev
	s.auditPos = (s.auditPos + 1) % auditRingSize
}

// AuditLog returns a copy of the in-memory diagnostic ring buffer, oldest
// first, for the status command surface.
func (s *Store) AuditLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audit))
	n := len(s.audit)
	for i := 0; i < n; i++ {
		idx := i
		if n == auditRingSize {
			idx = (s.auditPos + i) % auditRingSize
		}
		ev := s.audit[idx]
		out = append(out, ev.At.Format(time.RFC3339)+" "+ev.Op+" "+ev.Info)
	}
	return out
}
