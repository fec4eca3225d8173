package tracking

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Links renders tracking URLs under one base URL.
type Links struct {
	base   string
	signer *Signer
}

func NewLinks(baseURL string, signer *Signer) *Links {
	return &Links{base: strings.TrimRight(baseURL, "/"), signer: signer}
}

func (l *Links) token(ref Ref, email string) string {
	return l.signer.Token(ref.Scope, ref.ScopeID, ref.RecipientID, email)
}

// OpenURL is the 1x1 pixel address.
func (l *Links) OpenURL(ref Ref, email string) string {
	return l.base + "/t/o/" + ref.Encode() + "/" + l.token(ref, email) + ".gif"
}

// ClickURL wraps target in a signed redirect.
func (l *Links) ClickURL(ref Ref, email, target string) string {
	tok := l.token(ref, email)
	q := url.Values{}
	q.Set("u", target)
	q.Set("s", l.signer.LinkSig(tok, target))
	return l.base + "/t/c/" + ref.Encode() + "/" + tok + "?" + q.Encode()
}

func (l *Links) UnsubscribeURL(ref Ref, email string) string {
	return l.base + "/t/u/" + ref.Encode() + "/" + l.token(ref, email)
}

// Headers returns RFC 8058 one-click unsubscribe headers.
func (l *Links) Headers(ref Ref, email string) map[string]string {
	return map[string]string{
		"List-Unsubscribe":      "<" + l.UnsubscribeURL(ref, email) + ">",
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}

var hrefPattern = regexp.MustCompile(`(?i)href\s*=\s*"(https?://[^"]+)"`)

const unsubscribePlaceholder = "{{unsubscribe_url}}"

// Inject rewrites http(s) links to click redirects, fills the unsubscribe
// placeholder, and appends the open pixel before </body> (or at the end).
func (l *Links) Inject(body string, ref Ref, email string) string {
	unsub := l.UnsubscribeURL(ref, email)
	body = strings.ReplaceAll(body, unsubscribePlaceholder, unsub)

	body = hrefPattern.ReplaceAllStringFunc(body, func(m string) string {
		// attribute values are HTML-escaped; sign and redirect to the real URL
		target := html.UnescapeString(hrefPattern.FindStringSubmatch(m)[1])
		if target == unsub {
			return m
		}
		return `href="` + html.EscapeString(l.ClickURL(ref, email, target)) + `"`
	})

	pixel := `<img src="` + l.OpenURL(ref, email) + `" width="1" height="1" alt="" style="display:none">`
	if i := strings.LastIndex(strings.ToLower(body), "</body>"); i >= 0 {
		return body[:i] + pixel + body[i:]
	}
	return body + pixel
}
