// Package bookmarklet renders the browser-facing artifacts of the delivery
// server: the HTML index page and the javascript: bootstrap payload placed
// behind each index link.
//
// A live-reloaded script cannot execute as a true bookmarklet (the bookmark
// body would freeze one build forever), so the bookmarklet the user registers
// is a small bootstrap that loads the current script body as an external
// script tag on every click. All rendering here is pure string generation;
// nothing in this package touches server state.
package bookmarklet

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"
)

// Entry is one index page item: a display name and the javascript: bootstrap
// href registered as the bookmark target.
type Entry struct {
	DisplayName     string
	BookmarkletHref string
}

// User-facing messages surfaced by the bootstrap's two failure channels. A
// network-level load failure and a CSP block are indistinguishable to a bare
// script tag, hence the separate securitypolicyviolation listener.
const (
	LoadFailureMessage = "marklet: could not load the script. The delivery server is not ready or unreachable."
	CSPBlockedMessage  = "marklet: the script load was blocked by this page's Content-Security-Policy."
)

// bootstrapTemplate is the client-side loader. Every line is a complete
// clause so the whitespace collapse below cannot join tokens. Listener
// lifecycle: all three listeners are registered before the script element is
// attached, and whichever fires first removes all three, so neither duplicate
// alerts nor a page-lifetime securitypolicyviolation listener can leak.
const bootstrapTemplate = `(function(){
var u=%s+"&v="+Date.now().toString(36)+"."+Math.random().toString(36).slice(2);
var s=document.createElement("script");
var cleanup=function(){
s.removeEventListener("load",onLoad);
s.removeEventListener("error",onError);
document.removeEventListener("securitypolicyviolation",onViolation);
};
var onLoad=function(){
cleanup();
};
var onError=function(){
cleanup();
alert(%s);
};
var onViolation=function(e){
if(e.blockedURI!==u||e.disposition!=="enforce"){
return;
}
cleanup();
alert(%s);
};
s.addEventListener("load",onLoad);
s.addEventListener("error",onError);
document.addEventListener("securitypolicyviolation",onViolation);
s.src=u;
document.body.appendChild(s);
s.parentNode.removeChild(s);
})();`

// RenderBootstrap produces the percent-encoded javascript: URI that loads
// scriptURL as an external script tag with a cache-busting query suffix.
// scriptURL must be absolute: the bookmarklet executes in the context of an
// arbitrary page, not the index.
func RenderBootstrap(scriptURL string) string {
	script := fmt.Sprintf(bootstrapTemplate,
		jsString(scriptURL),
		jsString(LoadFailureMessage),
		jsString(CSPBlockedMessage),
	)
	return "javascript:" + url.PathEscape(collapse(script))
}

// Wrap rewrites a raw script into a standalone javascript: URI bookmarklet.
// Unlike the bootstrap, the wrapped form freezes the script at build time; it
// is what the build pipeline writes as its on-disk artifact. Newlines are
// percent-encoded rather than stripped so line comments in the source stay
// intact.
func Wrap(script string) string {
	return "javascript:" + url.PathEscape("(function(){"+script+"})();")
}

// AlertScript renders an executable alert call carrying message. The /file
// handler answers unknown hashes with this instead of an HTTP error status
// because the only consumer able to display the failure is the script
// execution context itself.
func AlertScript(message string) string {
	return fmt.Sprintf("alert(%s);", jsString(message))
}

// RenderIndex renders the navigable index document, one list item per entry.
// Display names are HTML-escaped; hrefs only get attribute quoting since they
// are already URI-encoded scripts. The embedded reload client refreshes the
// page when the server announces a new generation and degrades silently when
// the socket is unavailable.
func RenderIndex(entries []Entry) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>marklet</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 3rem auto; padding: 0 1rem; color: #1a202c; }
h1 { font-size: 1.4rem; }
ul.bookmarklets { list-style: none; padding: 0; }
ul.bookmarklets li { margin: 0.5rem 0; }
ul.bookmarklets a { display: inline-block; padding: 0.4rem 0.8rem; background: #edf2f7; border-radius: 4px; color: #2b6cb0; text-decoration: none; }
p.hint { color: #718096; font-size: 0.9rem; }
</style>
</head>
<body>
<h1>Bookmarklets</h1>
<p class="hint">Drag a link to your bookmarks bar. The bookmark keeps working across rebuilds; each click fetches the latest build.</p>
<ul class="bookmarklets">
`)

	for _, entry := range entries {
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n",
			html.EscapeString(entry.BookmarkletHref),
			html.EscapeString(entry.DisplayName),
		)
	}

	b.WriteString(`</ul>
<script>
(function(){
	function connect(){
		var proto = location.protocol === "https:" ? "wss://" : "ws://";
		var ws = new WebSocket(proto + location.host + "/ws");
		ws.onmessage = function(ev){
			var msg = JSON.parse(ev.data);
			if (msg.type === "generation") { location.reload(); }
		};
		ws.onclose = function(){ setTimeout(connect, 1000); };
	}
	connect();
})();
</script>
</body>
</html>
`)

	return b.String()
}

// jsString embeds s into generated JavaScript as a quoted string literal.
// json.Marshal handles quote, backslash, and control character escaping.
func jsString(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		// json.Marshal cannot fail for a string input.
		panic(err)
	}
	return string(encoded)
}

// collapse normalizes a multi-line script template into a single compact
// line, since javascript: URIs are conventionally newline-free.
func collapse(script string) string {
	lines := strings.Split(script, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "")
}
