// Package auth gates mutating graph.Controller calls behind a single
// operator token. It is a narrowed descendant of the original radio
// service's session/JWT layer: with the HTTP surface out of scope for this
// core (spec.md §1), there is no session to issue a token for, but the
// bcrypt-hashed-secret idiom that layer used for its DJ password still has
// a job to do here.
package auth

import (
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned by Verify when the candidate token does not
// match the configured secret.
var ErrUnauthorized = errors.New("auth: invalid operator token")

// Verifier holds a bcrypt hash of the configured operator token. It never
// stores or compares the plaintext directly.
type Verifier struct {
	hash []byte
}

// NewVerifier hashes token once with bcrypt, the same way the original
// service pre-hashed its configured DJ password so a plaintext credential
// is never retained in memory longer than necessary. An empty token
// disables the gate entirely (Verify always succeeds) — used when running
// the core without an operator layer in front of it, e.g. in tests.
func NewVerifier(token string) (*Verifier, error) {
	if token == "" {
		return &Verifier{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash operator token with bcrypt", "error", err)
		return nil, err
	}
	return &Verifier{hash: hash}, nil
}

// Verify reports whether candidate matches the configured operator token.
func (v *Verifier) Verify(candidate string) error {
	if len(v.hash) == 0 {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(candidate)); err != nil {
		return ErrUnauthorized
	}
	return nil
}
