package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Bread Science</title><style>.x { color: red }</style></head>
<body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<script>trackVisitor();</script>
<article>
<h1>Why dough rises</h1>
<p>Yeast produces carbon dioxide as it ferments sugars.</p>
<p>Gluten traps the gas in elastic pockets.</p>
</article>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestFetchExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := New().Fetch(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if page.Title != "Bread Science" {
		t.Errorf("Title = %q, want %q", page.Title, "Bread Science")
	}
	for _, want := range []string{"Why dough rises", "carbon dioxide", "elastic pockets"} {
		if !strings.Contains(page.Text, want) {
			t.Errorf("text missing %q:\n%s", want, page.Text)
		}
	}
	for _, skip := range []string{"trackVisitor", "color: red", "Home", "Copyright"} {
		if strings.Contains(page.Text, skip) {
			t.Errorf("boilerplate %q leaked into text:\n%s", skip, page.Text)
		}
	}
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("just some text"))
	}))
	defer srv.Close()

	page, err := New().Fetch(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Text != "just some text" {
		t.Errorf("Text = %q", page.Text)
	}
}

func TestFetchTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	page, err := New().Fetch(context.Background(), srv.URL, 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !page.Truncated {
		t.Error("expected Truncated = true")
	}
	if len(page.Text) != 10 {
		t.Errorf("len(Text) = %d, want 10", len(page.Text))
	}
}

func TestFetchEmptyURL(t *testing.T) {
	if _, err := New().Fetch(context.Background(), "  ", 0); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestTruncateRunesMultibyte(t *testing.T) {
	s := "héllo wörld"
	got := truncateRunes(s, 4)
	if got != "héll" {
		t.Errorf("truncateRunes = %q, want %q", got, "héll")
	}
}

func TestWebFetchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	tool := NewTool(New())

	out, err := tool.Handler(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if !strings.Contains(out.(string), "Bread Science") {
		t.Errorf("output missing title: %q", out)
	}

	if _, err := tool.Handler(context.Background(), map[string]any{"url": srv.URL + "/missing"}); err == nil {
		t.Error("expected error for HTTP 404")
	}
	if _, err := tool.Handler(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error when url missing")
	}
}
