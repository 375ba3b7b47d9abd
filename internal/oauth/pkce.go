package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// verifierAlphabet is the unreserved character set for a PKCE code verifier
// (RFC 7636 §4.1): [A-Za-z0-9-._~].
const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// verifierLength matches spec.md §4.1: "a 64-character verifier".
const verifierLength = 64

// PKCECodes is a verifier/challenge pair plus the method used to derive the
// challenge (always S256 here).
type PKCECodes struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCECodes generates a cryptographically random verifier and its
// S256 challenge (spec.md §4.1).
func GeneratePKCECodes() (PKCECodes, error) {
	verifier, err := generateVerifier()
	if err != nil {
		return PKCECodes{}, fmt.Errorf("oauth: generate verifier: %w", err)
	}
	return PKCECodes{
		CodeVerifier:  verifier,
		CodeChallenge: challengeFromVerifier(verifier),
	}, nil
}

func generateVerifier() (string, error) {
	raw := make([]byte, verifierLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, verifierLength)
	for i, b := range raw {
		out[i] = verifierAlphabet[int(b)%len(verifierAlphabet)]
	}
	return string(out), nil
}

func challengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// authState is the payload encoded into the OAuth `state` parameter for the
// Authorization Code + PKCE flow (spec.md §4.1: "Encodes {verifier,
// project_id} as base64url(UTF-8(JSON))").
type authState struct {
	Verifier  string `json:"verifier"`
	ProjectID string `json:"project_id,omitempty"`
}

func encodeState(verifier, projectID string) (string, error) {
	raw, err := json.Marshal(authState{Verifier: verifier, ProjectID: projectID})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeState(state string) (authState, error) {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return authState{}, ErrInvalidState
	}
	var decoded authState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return authState{}, ErrInvalidState
	}
	if decoded.Verifier == "" {
		return authState{}, ErrInvalidState
	}
	return decoded, nil
}
