package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// boilerplate maps elements whose subtrees carry no readable content.
var boilerplate = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
}

// extract parses raw HTML and returns the document title plus its
// readable text. A parse failure degrades to tokenizer-based tag
// stripping rather than an error.
func extract(raw string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", normalize(stripTags(raw))
	}

	var b strings.Builder
	walk(doc, &b, &title)
	return strings.TrimSpace(title), normalize(b.String())
}

// walk collects visible text, recording the first <title> it sees.
func walk(n *html.Node, b *strings.Builder, title *string) {
	if n.Type == html.ElementNode {
		if boilerplate[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Title && *title == "" {
			*title = textContent(n)
			return
		}
		if blockLevel(n.DataAtom) && b.Len() > 0 {
			b.WriteString("\n\n")
		}
	}

	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			b.WriteString(t)
			b.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b, title)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		b.WriteByte('\n')
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func blockLevel(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Figure, atom.Hr:
		return true
	}
	return false
}

// normalize collapses intra-line whitespace and runs of blank lines.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	prevBlank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
		} else {
			prevBlank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripTags is the parse-failure fallback: emit only text tokens.
func stripTags(s string) string {
	tok := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.WriteString(tok.Token().Data)
			b.WriteByte(' ')
		}
	}
}
