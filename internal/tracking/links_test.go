package tracking

import (
	"html"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/domain"
)

func testLinks() (*Links, Ref) {
	return NewLinks("https://t.example.com/", NewSigner("secret")),
		Ref{Scope: domain.ScopeCampaign, ScopeID: "camp", RecipientID: "contact", Step: 0}
}

func TestOpenURLShape(t *testing.T) {
	l, ref := testLinks()
	u := l.OpenURL(ref, "ada@example.com")
	assert.True(t, strings.HasPrefix(u, "https://t.example.com/t/o/"+ref.Encode()+"/"))
	assert.True(t, strings.HasSuffix(u, ".gif"))
	assert.NotContains(t, u, "ada")
}

func TestClickURLCarriesSignedTarget(t *testing.T) {
	l, ref := testLinks()
	raw := l.ClickURL(ref, "ada@example.com", "https://shop.example.com/?a=1&b=2")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	parts := strings.Split(strings.TrimPrefix(u.Path, "/t/c/"), "/")
	require.Len(t, parts, 2)
	assert.Equal(t, "https://shop.example.com/?a=1&b=2", u.Query().Get("u"))
	assert.True(t, l.signer.VerifyLink(parts[1], u.Query().Get("u"), u.Query().Get("s")))
}

func TestInject(t *testing.T) {
	l, ref := testLinks()
	body := `<html><body><a href="https://shop.example.com/x">Shop</a> <a href="mailto:x@y.z">Mail</a> <a href="{{unsubscribe_url}}">Unsub</a></body></html>`
	out := l.Inject(body, ref, "ada@example.com")

	assert.Contains(t, out, `href="https://t.example.com/t/c/`)
	assert.Contains(t, out, `href="mailto:x@y.z"`)
	assert.Contains(t, out, `href="`+l.UnsubscribeURL(ref, "ada@example.com")+`"`)
	assert.NotContains(t, out, "{{unsubscribe_url}}")
	assert.NotContains(t, out, `href="https://shop.example.com/x"`)

	pixel := strings.Index(out, `<img src="https://t.example.com/t/o/`)
	require.Positive(t, pixel)
	assert.Less(t, pixel, strings.Index(out, "</body>"))
}

func TestInjectDecodesEscapedQuery(t *testing.T) {
	l, ref := testLinks()
	for _, body := range []string{
		`<a href="https://shop.example.com/p?a=1&amp;b=2">Shop</a>`,
		`<a href="https://shop.example.com/p?a=1&b=2">Shop</a>`,
	} {
		out := l.Inject(body, ref, "ada@example.com")
		m := hrefPattern.FindStringSubmatch(out)
		require.Len(t, m, 2, body)
		assert.Contains(t, m[1], "&amp;s=")

		u, err := url.Parse(html.UnescapeString(m[1]))
		require.NoError(t, err)
		target := u.Query().Get("u")
		assert.Equal(t, "https://shop.example.com/p?a=1&b=2", target, body)

		tok := strings.Split(strings.TrimPrefix(u.Path, "/t/c/"), "/")[1]
		assert.True(t, l.signer.VerifyLink(tok, target, u.Query().Get("s")))
	}
}

func TestInjectWithoutBody(t *testing.T) {
	l, ref := testLinks()
	out := l.Inject("<p>hi</p>", ref, "ada@example.com")
	assert.True(t, strings.HasPrefix(out, "<p>hi</p><img "))
}

func TestHeaders(t *testing.T) {
	l, ref := testLinks()
	h := l.Headers(ref, "ada@example.com")
	assert.Equal(t, "<"+l.UnsubscribeURL(ref, "ada@example.com")+">", h["List-Unsubscribe"])
	assert.Equal(t, "List-Unsubscribe=One-Click", h["List-Unsubscribe-Post"])
}
