package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// Source is raw document text with the name it was read from.
type Source struct {
	Name string
	Text string
}

// ReadFile reads path as HTML when its extension says so, otherwise as text.
// Text that is not valid UTF-8 is decoded with the detected charset.
func ReadFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		text, err := ExtractHTML(bytes.NewReader(data), "text/html")
		if err != nil {
			return Source{}, fmt.Errorf("extract %s: %w", path, err)
		}
		return Source{Name: path, Text: text}, nil
	default:
		text, err := decodeText(data)
		if err != nil {
			return Source{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return Source{Name: path, Text: text}, nil
	}
}

// ExtractHTML returns the visible text of an HTML document. Block elements and
// line breaks become newlines; script and style content is dropped.
func ExtractHTML(r io.Reader, contentType string) (string, error) {
	utf8Reader, err := charset.NewReader(r, contentType)
	if err != nil {
		return "", err
	}
	doc, err := html.Parse(utf8Reader)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
				return
			case atom.Br:
				buf.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			buf.WriteByte('\n')
		}
	}
	walk(doc)

	return normalizeSpace(buf.String()), nil
}

func decodeText(data []byte) (string, error) {
	enc, name, _ := charset.DetermineEncoding(data, "text/plain")
	if name == "utf-8" {
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Td, atom.Th, atom.Table,
		atom.Blockquote, atom.Pre:
		return true
	}
	return false
}

// normalizeSpace trims each line and drops blank ones.
func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
