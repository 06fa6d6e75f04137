package transform

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/buildflow/internal/config"
)

// HTML validates pages by parsing them and mirrors them into the output root.
// Release builds drop comments and collapse whitespace that does not render.
type HTML struct {
	ID   string
	Base string
	Dest string
}

func (h HTML) Name() string { return h.ID }

func (h HTML) Apply(_ context.Context, inputs []string, cfg *config.BuildConfig) ([]string, error) {
	outputs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		src, err := os.ReadFile(filepath.Clean(in))
		if err != nil {
			return outputs, ioFailure(h.ID, err)
		}
		doc, err := html.Parse(bytes.NewReader(src))
		if err != nil {
			return outputs, &TransformError{Transform: h.ID, Kind: KindCompile, Err: err}
		}

		data := src
		if cfg.Minify() {
			compactHTML(doc)
			var buf bytes.Buffer
			if err := html.Render(&buf, doc); err != nil {
				return outputs, &TransformError{Transform: h.ID, Kind: KindCompile, Err: err}
			}
			data = buf.Bytes()
		}

		dst := mirrorPath(h.Base, cfg.OutputDir, h.Dest, in)
		if err := writeFile(dst, data); err != nil {
			return outputs, ioFailure(h.ID, err)
		}
		outputs = append(outputs, dst)
	}
	return outputs, nil
}

// preserveWhitespace lists elements whose text content is significant.
var preserveWhitespace = map[string]bool{
	"pre":      true,
	"textarea": true,
	"script":   true,
	"style":    true,
}

// structural elements never render whitespace-only text children.
var structural = map[string]bool{
	"html": true, "head": true, "table": true, "thead": true, "tbody": true,
	"tfoot": true, "tr": true, "ul": true, "ol": true, "dl": true, "select": true,
}

var block = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "body": true,
	"dd": true, "details": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "head": true,
	"header": true, "hr": true, "li": true, "link": true, "main": true, "meta": true,
	"nav": true, "ol": true, "p": true, "pre": true, "script": true, "section": true,
	"style": true, "summary": true, "table": true, "tbody": true, "td": true,
	"tfoot": true, "th": true, "thead": true, "title": true, "tr": true, "ul": true,
}

// isBlockBoundary reports whether n (a sibling, or nil at the edge of parent)
// separates lines, so adjacent whitespace renders nothing.
func isBlockBoundary(n, parent *html.Node) bool {
	if n == nil {
		return parent.Type != html.ElementNode || block[parent.Data]
	}
	return n.Type == html.ElementNode && block[n.Data]
}

// neighbour walks from c past comments and whitespace-only text.
func neighbour(c *html.Node, step func(*html.Node) *html.Node) *html.Node {
	for n := step(c); n != nil; n = step(n) {
		switch {
		case n.Type == html.CommentNode:
		case n.Type == html.TextNode && strings.TrimSpace(n.Data) == "":
		default:
			return n
		}
	}
	return nil
}

func prevSibling(n *html.Node) *html.Node { return n.PrevSibling }
func nextSibling(n *html.Node) *html.Node { return n.NextSibling }

// compactHTML removes comments and whitespace that cannot render. Whitespace
// between inline content collapses to a single space.
func compactHTML(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				continue
			}
			if (n.Type == html.ElementNode && structural[n.Data]) ||
				(isBlockBoundary(neighbour(c, prevSibling), n) && isBlockBoundary(neighbour(c, nextSibling), n)) {
				n.RemoveChild(c)
				continue
			}
			c.Data = " "
		case html.ElementNode:
			if !preserveWhitespace[c.Data] {
				compactHTML(c)
			}
		default:
			compactHTML(c)
		}
	}
}
