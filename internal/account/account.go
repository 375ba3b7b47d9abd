// Package account defines the data model shared by the token store and the
// account selector: the Account record, its subscription tier, and the
// process-local scheduling state that rides alongside it.
package account

import "strconv"

// Tier is the subscription priority class of an account. Lower ordinal
// values are preferred by the selector's tier/round-robin pass.
type Tier int

const (
	TierUltra Tier = iota
	TierPro
	TierFree
	TierUnknown
)

// ParseTier maps the persisted tier string onto its priority ordinal.
func ParseTier(s string) Tier {
	switch s {
	case "ULTRA":
		return TierUltra
	case "PRO":
		return TierPro
	case "FREE":
		return TierFree
	default:
		return TierUnknown
	}
}

func (t Tier) String() string {
	switch t {
	case TierUltra:
		return "ULTRA"
	case TierPro:
		return "PRO"
	case TierFree:
		return "FREE"
	default:
		return "UNKNOWN"
	}
}

// ModelQuota is a per-model quota snapshot, persisted best-effort alongside
// an account. It is informational only; nothing in the selector depends on
// it being present or fresh.
type ModelQuota struct {
	Models      []string `json:"models"`
	LastUpdated int64    `json:"lastUpdated"`
}

// Account is the unit of authentication and quota (spec.md §3).
//
// Provider names the vendor this account authenticates against
// ("antigravity" or "qwen"). The base spec is silent on multi-vendor
// accounts since it describes a single account set; carrying the
// provider alongside each account is what lets the Token Store dispatch
// refresh to the right oauth.Driver and the orchestrator route to the
// right translator target.
type Account struct {
	Index        int    `json:"-"`
	Provider     string `json:"provider"`
	Email        string `json:"email,omitempty"`
	ProjectID    string `json:"projectId"`
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	AddedAt      int64  `json:"addedAt"`
	LastUsedAt   int64  `json:"lastUsed"`

	SubscriptionTier string      `json:"subscriptionTier,omitempty"`
	Quota            *ModelQuota `json:"quota,omitempty"`

	Disabled       bool   `json:"disabled,omitempty"`
	DisabledReason string `json:"disabledReason,omitempty"`
}

// Identifier returns the stable key used by rate-limit records and session
// bindings: the email if known, else the string form of the index.
func (a *Account) Identifier() string {
	if a.Email != "" {
		return a.Email
	}
	return strconv.Itoa(a.Index)
}

// Tier returns the parsed priority ordinal for this account.
func (a *Account) Tier() Tier {
	return ParseTier(a.SubscriptionTier)
}
