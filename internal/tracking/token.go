// Package tracking authenticates and records opens, clicks and unsubscribes.
//
// Every tracked link carries a Ref (what was sent to whom) and a token:
// HMAC-SHA256 keyed by the tracking secret over scope, scope ID, recipient
// ID and the recipient's address. The address is not in the link; the
// handler looks it up from the Ref and recomputes the token, so a forged or
// edited link never verifies.
package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/ignite/mailcraft/internal/domain"
)

const (
	tokenLen   = 32
	linkSigLen = 16
)

// ErrBadRef is returned for links whose payload cannot be decoded.
var ErrBadRef = errors.New("malformed tracking reference")

// Ref identifies one delivered message: a step of a sequence enrollment
// or a campaign send to a contact.
type Ref struct {
	Scope       domain.Scope
	ScopeID     string
	RecipientID string
	Step        int
}

// Encode packs the ref into a URL-safe path segment.
func (r Ref) Encode() string {
	raw := strings.Join([]string{string(r.Scope), r.ScopeID, r.RecipientID, strconv.Itoa(r.Step)}, "|")
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeRef reverses Encode.
func DecodeRef(s string) (Ref, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Ref{}, ErrBadRef
	}
	parts := strings.Split(string(b), "|")
	if len(parts) != 4 {
		return Ref{}, ErrBadRef
	}
	step, err := strconv.Atoi(parts[3])
	if err != nil || step < 0 {
		return Ref{}, ErrBadRef
	}
	ref := Ref{Scope: domain.Scope(parts[0]), ScopeID: parts[1], RecipientID: parts[2], Step: step}
	if !ref.Scope.Valid() || ref.ScopeID == "" || ref.RecipientID == "" {
		return Ref{}, ErrBadRef
	}
	return ref, nil
}

// Signer derives and checks tracking tokens.
type Signer struct {
	key []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

func (s *Signer) mac(data string, n int) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:n]
}

// Token binds a message reference to the recipient address. The step is
// not part of it, so every step of one enrollment shares a token.
func (s *Signer) Token(scope domain.Scope, scopeID, recipientID, email string) string {
	data := strings.Join([]string{string(scope), scopeID, recipientID, domain.NormalizeEmail(email)}, "|")
	return s.mac(data, tokenLen)
}

// Verify compares in constant time.
func (s *Signer) Verify(ref Ref, email, token string) bool {
	want := s.Token(ref.Scope, ref.ScopeID, ref.RecipientID, email)
	return hmac.Equal([]byte(want), []byte(token))
}

// LinkSig binds a click destination to a token so links cannot be
// repointed at other sites.
func (s *Signer) LinkSig(token, target string) string {
	return s.mac(token+"|"+target, linkSigLen)
}

func (s *Signer) VerifyLink(token, target, sig string) bool {
	return hmac.Equal([]byte(s.LinkSig(token, target)), []byte(sig))
}
