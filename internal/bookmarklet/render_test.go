package bookmarklet

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestRenderBootstrap_JavascriptScheme(t *testing.T) {
	href := RenderBootstrap("http://127.0.0.1:3300/file?filename=abc123")

	assert.True(t, strings.HasPrefix(href, "javascript:"))
	assert.NotContains(t, href, "\n", "javascript: URIs must be newline-free")
}

func TestRenderBootstrap_DecodedPayload(t *testing.T) {
	scriptURL := "http://127.0.0.1:3300/file?filename=abc123"
	href := RenderBootstrap(scriptURL)

	payload, err := url.PathUnescape(strings.TrimPrefix(href, "javascript:"))
	require.NoError(t, err)

	// Cache busting: timestamp plus random suffix appended per click.
	assert.Contains(t, payload, `"`+scriptURL+`"`)
	assert.Contains(t, payload, "Date.now()")
	assert.Contains(t, payload, "Math.random()")

	// Script element is attached, then immediately detached.
	assert.Contains(t, payload, "document.body.appendChild(s)")
	assert.Contains(t, payload, "s.parentNode.removeChild(s)")

	// Three listeners registered before attach, all removed on first fire.
	attachIdx := strings.Index(payload, "document.body.appendChild(s)")
	for _, registration := range []string{
		`s.addEventListener("load"`,
		`s.addEventListener("error"`,
		`document.addEventListener("securitypolicyviolation"`,
	} {
		idx := strings.Index(payload, registration)
		require.NotEqual(t, -1, idx, "missing %s", registration)
		assert.Less(t, idx, attachIdx, "%s must be registered before attach", registration)
	}
	assert.Equal(t, 2, strings.Count(payload, "s.removeEventListener"),
		"cleanup removes both script-element listeners")
	assert.Equal(t, 1, strings.Count(payload, "document.removeEventListener"),
		"cleanup removes the document-level listener")
	assert.Contains(t, payload, `document.removeEventListener("securitypolicyviolation"`)

	// CSP channel filters on the exact resource URL and enforce disposition.
	assert.Contains(t, payload, `e.blockedURI!==u`)
	assert.Contains(t, payload, `e.disposition!=="enforce"`)

	// Both failure channels carry distinct messages.
	assert.Contains(t, payload, "not ready or unreachable")
	assert.Contains(t, payload, "Content-Security-Policy")
}

func TestRenderBootstrap_EscapesScriptURL(t *testing.T) {
	href := RenderBootstrap(`http://127.0.0.1:3300/file?filename="quoted"`)

	payload, err := url.PathUnescape(strings.TrimPrefix(href, "javascript:"))
	require.NoError(t, err)
	assert.Contains(t, payload, `\"quoted\"`, "embedded URL must stay inside its string literal")
}

func TestAlertScript(t *testing.T) {
	script := AlertScript(`file not found, re-register the "bookmarklet"`)

	assert.True(t, strings.HasPrefix(script, "alert("))
	assert.True(t, strings.HasSuffix(script, ");"))
	assert.Contains(t, script, `\"bookmarklet\"`)
}

func TestRenderIndex_OneItemPerEntry(t *testing.T) {
	entries := []Entry{
		{DisplayName: "a.js", BookmarkletHref: RenderBootstrap("http://127.0.0.1:3300/file?filename=aaa")},
		{DisplayName: "b.js", BookmarkletHref: RenderBootstrap("http://127.0.0.1:3300/file?filename=bbb")},
	}

	doc := RenderIndex(entries)

	items := listItems(t, doc)
	require.Len(t, items, 2)
	assert.Equal(t, "a.js", items[0].text)
	assert.Equal(t, "b.js", items[1].text)
	assert.True(t, strings.HasPrefix(items[0].href, "javascript:"))
	assert.True(t, strings.HasPrefix(items[1].href, "javascript:"))
}

func TestRenderIndex_EscapesDisplayNames(t *testing.T) {
	entries := []Entry{
		{DisplayName: `<b>&"evil"</b>.js`, BookmarkletHref: "javascript:void(0)"},
	}

	doc := RenderIndex(entries)

	assert.NotContains(t, doc, "<b>&\"evil\"</b>.js")
	assert.Contains(t, doc, "&lt;b&gt;&amp;&#34;evil&#34;&lt;/b&gt;.js")

	// The escaped text must still parse back to the original display name.
	items := listItems(t, doc)
	require.Len(t, items, 1)
	assert.Equal(t, `<b>&"evil"</b>.js`, items[0].text)
}

func TestRenderIndex_EmptyGeneration(t *testing.T) {
	doc := RenderIndex(nil)

	assert.Empty(t, listItems(t, doc))
	assert.Contains(t, doc, "<ul class=\"bookmarklets\">")
}

type indexItem struct {
	text string
	href string
}

// listItems parses the rendered document and extracts each bookmarklet list
// item's anchor text and href.
func listItems(t *testing.T, doc string) []indexItem {
	t.Helper()

	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	var items []indexItem
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" {
			for a := n.FirstChild; a != nil; a = a.NextSibling {
				if a.Type != html.ElementNode || a.Data != "a" {
					continue
				}
				item := indexItem{}
				for _, attr := range a.Attr {
					if attr.Key == "href" {
						item.href = attr.Val
					}
				}
				if a.FirstChild != nil && a.FirstChild.Type == html.TextNode {
					item.text = a.FirstChild.Data
				}
				items = append(items, item)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return items
}
