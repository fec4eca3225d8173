package tracking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/domain"
)

func TestRefRoundTrip(t *testing.T) {
	ref := Ref{Scope: domain.ScopeSequence, ScopeID: "seq-1", RecipientID: "enr-9", Step: 2}
	got, err := DecodeRef(ref.Encode())
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestDecodeRefRejectsGarbage(t *testing.T) {
	for _, in := range []string{
		"",
		"!!!",
		Ref{Scope: "newsletter", ScopeID: "a", RecipientID: "b"}.Encode(),
		Ref{Scope: domain.ScopeCampaign, ScopeID: "", RecipientID: "b"}.Encode(),
		Ref{Scope: domain.ScopeCampaign, ScopeID: "a", RecipientID: "b", Step: -1}.Encode(),
	} {
		_, err := DecodeRef(in)
		assert.ErrorIs(t, err, ErrBadRef, "input %q", in)
	}
}

func TestTokenIsDeterministicAndCaseInsensitiveOnEmail(t *testing.T) {
	s := NewSigner("k")
	a := s.Token(domain.ScopeSequence, "seq", "enr", "Ada@Example.com")
	b := s.Token(domain.ScopeSequence, "seq", "enr", "ada@example.com ")
	assert.Equal(t, a, b)
	assert.Len(t, a, tokenLen)
}

func TestTokenBindsEveryInput(t *testing.T) {
	s := NewSigner("k")
	base := s.Token(domain.ScopeSequence, "seq", "enr", "ada@example.com")
	assert.NotEqual(t, base, s.Token(domain.ScopeCampaign, "seq", "enr", "ada@example.com"))
	assert.NotEqual(t, base, s.Token(domain.ScopeSequence, "seq2", "enr", "ada@example.com"))
	assert.NotEqual(t, base, s.Token(domain.ScopeSequence, "seq", "enr2", "ada@example.com"))
	assert.NotEqual(t, base, s.Token(domain.ScopeSequence, "seq", "enr", "bob@example.com"))
	assert.NotEqual(t, base, NewSigner("other").Token(domain.ScopeSequence, "seq", "enr", "ada@example.com"))
}

func TestVerify(t *testing.T) {
	s := NewSigner("k")
	ref := Ref{Scope: domain.ScopeSequence, ScopeID: "seq", RecipientID: "enr", Step: 1}
	tok := s.Token(ref.Scope, ref.ScopeID, ref.RecipientID, "ada@example.com")

	assert.True(t, s.Verify(ref, "ada@example.com", tok))
	assert.False(t, s.Verify(ref, "bob@example.com", tok))
	assert.False(t, s.Verify(ref, "ada@example.com", strings.Repeat("0", tokenLen)))
	assert.False(t, s.Verify(ref, "ada@example.com", ""))
}

func TestLinkSig(t *testing.T) {
	s := NewSigner("k")
	sig := s.LinkSig("tok", "https://example.com/a")
	assert.True(t, s.VerifyLink("tok", "https://example.com/a", sig))
	assert.False(t, s.VerifyLink("tok", "https://evil.example/a", sig))
	assert.False(t, s.VerifyLink("tok2", "https://example.com/a", sig))
}
