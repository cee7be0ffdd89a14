package matrix

import (
	"html"
	"strings"
)

// markdownToHTML converts the small subset of Markdown produced by command
// handlers and roll summaries into HTML for org.matrix.custom.html bodies.
//
//   - Fenced code  ```…```  → <pre><code>…</code></pre>, anywhere in a line
//   - Inline code  `…`      → <code>…</code>
//   - Bold  **…**           → <strong>…</strong>
//   - Newlines              → <br/>
//
// All text is HTML-escaped first.
func markdownToHTML(md string) string {
	parts := strings.Split(md, "```")
	var out strings.Builder
	for i, part := range parts {
		switch {
		case i%2 == 0:
			out.WriteString(inlineToHTML(part))
		case i == len(parts)-1:
			// Unterminated fence: keep the marker as text.
			out.WriteString(inlineToHTML("```" + part))
		default:
			code := strings.TrimPrefix(part, "\n")
			code = strings.TrimSuffix(code, "\n")
			out.WriteString("<pre><code>")
			out.WriteString(html.EscapeString(code))
			out.WriteString("</code></pre>")
		}
	}
	return out.String()
}

func inlineToHTML(s string) string {
	s = html.EscapeString(s)
	s = replaceDelimited(s, "`", "<code>", "</code>")
	s = replaceDelimited(s, "**", "<strong>", "</strong>")
	return strings.ReplaceAll(s, "\n", "<br/>")
}

// replaceDelimited replaces delim…delim pairs with open+content+close. An
// unmatched opener is left as-is.
func replaceDelimited(s, delim, open, close string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			break
		}
		end += start + len(delim)
		b.WriteString(s[:start])
		b.WriteString(open)
		b.WriteString(s[start+len(delim) : end])
		b.WriteString(close)
		s = s[end+len(delim):]
	}
	b.WriteString(s)
	return b.String()
}
