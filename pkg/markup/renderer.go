// Package markup renders rule descriptions written in Markdown into the
// HTML accepted by the host's rule pages.
package markup

import (
	"bytes"
	"html"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/russross/blackfriday/v2"
)

// Extensions enabled for rule descriptions: GitHub-style tables, fenced code,
// bare URL autolinking and heading anchors.
const Extensions = blackfriday.NoIntraEmphasis |
	blackfriday.Tables |
	blackfriday.FencedCode |
	blackfriday.Autolink |
	blackfriday.Strikethrough |
	blackfriday.SpaceHeadings |
	blackfriday.HeadingIDs |
	blackfriday.AutoHeadingIDs |
	blackfriday.DefinitionLists |
	blackfriday.BackslashLineBreak

// Renderer converts Markdown to HTML. Results are cached by content hash,
// so every distinct description is parsed once. Safe for concurrent use.
type Renderer struct {
	cache sync.Map // uint64 -> string
}

// NewRenderer creates a renderer with an empty cache.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render converts markup to HTML. It never fails: if the parser panics or
// produces no output, the raw markup is returned HTML-escaped inside <pre>.
func (r *Renderer) Render(markup string) string {
	key := xxhash.Sum64String(markup)
	if v, ok := r.cache.Load(key); ok {
		return v.(string)
	}
	out := render(markup)
	actual, _ := r.cache.LoadOrStore(key, out)
	return actual.(string)
}

// Len returns the number of cached descriptions.
func (r *Renderer) Len() int {
	n := 0
	r.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func render(markup string) (out string) {
	defer func() {
		if recover() != nil {
			out = Preformatted(markup)
		}
	}()

	if strings.TrimSpace(markup) == "" {
		return Preformatted(markup)
	}

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.UseXHTML | blackfriday.Safelink,
	})
	normalized := strings.ReplaceAll(strings.ReplaceAll(markup, "\r\n", "\n"), "\r", "\n")
	result := blackfriday.Run([]byte(normalized),
		blackfriday.WithExtensions(Extensions),
		blackfriday.WithRenderer(renderer),
	)
	result = bytes.TrimSpace(result)
	if len(result) == 0 {
		return Preformatted(markup)
	}
	return string(result)
}

// Preformatted wraps text, escaped, in a <pre> block.
func Preformatted(text string) string {
	return "<pre>" + html.EscapeString(text) + "</pre>"
}
