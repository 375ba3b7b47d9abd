package tokenstore

import (
	"encoding/json"
	"fmt"

	"github.com/llmbridge/vendorcore/internal/account"
)

// blobVersion is the schema version written to the persisted blob (spec.md §6).
const blobVersion = 1

// accountBlob is the wire shape of one account inside the persisted blob.
// Field names and casing match spec.md §6 exactly; this is the only type
// that should ever be (de)serialized to the secret store.
type accountBlob struct {
	Provider         string             `json:"provider"`
	Email            string             `json:"email,omitempty"`
	ProjectID        string             `json:"projectId"`
	RefreshToken     string             `json:"refreshToken"`
	AccessToken      string             `json:"accessToken,omitempty"`
	ExpiresAt        int64              `json:"expiresAt,omitempty"`
	AddedAt          int64              `json:"addedAt"`
	LastUsed         int64              `json:"lastUsed"`
	SubscriptionTier string             `json:"subscriptionTier,omitempty"`
	Quota            *account.ModelQuota `json:"quota,omitempty"`
	Disabled         bool               `json:"disabled,omitempty"`
	DisabledReason   string             `json:"disabledReason,omitempty"`
}

// storageBlob is the full persisted document (spec.md §6).
type storageBlob struct {
	Version      int           `json:"version"`
	Accounts     []accountBlob `json:"accounts"`
	CurrentIndex int           `json:"currentIndex"`
}

func toBlob(accounts []*account.Account, cursor int) storageBlob {
	out := make([]accountBlob, len(accounts))
	for i, a := range accounts {
		out[i] = accountBlob{
			Provider:         a.Provider,
			Email:            a.Email,
			ProjectID:        a.ProjectID,
			RefreshToken:     a.RefreshToken,
			AccessToken:      a.AccessToken,
			ExpiresAt:        a.ExpiresAt,
			AddedAt:          a.AddedAt,
			LastUsed:         a.LastUsedAt,
			SubscriptionTier: a.SubscriptionTier,
			Quota:            a.Quota,
			Disabled:         a.Disabled,
			DisabledReason:   a.DisabledReason,
		}
	}
	return storageBlob{Version: blobVersion, Accounts: out, CurrentIndex: cursor}
}

func marshalBlob(accounts []*account.Account, cursor int) ([]byte, error) {
	return json.Marshal(toBlob(accounts, cursor))
}

// unmarshalBlob decodes the persisted document, preserving every account
// (including disabled ones) in on-disk order — the caller is responsible
// for filtering disabled accounts out of the live, in-memory set per
// spec.md §4.2 ("filter disabled entries for the in-memory set").
func unmarshalBlob(data []byte) ([]*account.Account, int, error) {
	if len(data) == 0 {
		return nil, 0, nil
	}
	var blob storageBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, 0, fmt.Errorf("tokenstore: decode blob: %w", err)
	}
	accounts := make([]*account.Account, len(blob.Accounts))
	for i, ab := range blob.Accounts {
		accounts[i] = &account.Account{
			Index:            i,
			Provider:         ab.Provider,
			Email:            ab.Email,
			ProjectID:        ab.ProjectID,
			RefreshToken:     ab.RefreshToken,
			AccessToken:      ab.AccessToken,
			ExpiresAt:        ab.ExpiresAt,
			AddedAt:          ab.AddedAt,
			LastUsedAt:       ab.LastUsed,
			SubscriptionTier: ab.SubscriptionTier,
			Quota:            ab.Quota,
			Disabled:         ab.Disabled,
			DisabledReason:   ab.DisabledReason,
		}
	}
	return accounts, blob.CurrentIndex, nil
}
