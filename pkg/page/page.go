// Package page splits a markdown document into prose and runnable code
// blocks.
package page

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Block is one fenced code block.
type Block struct {
	Index    int    `json:"index"`
	Language string `json:"language"`
	Source   string `json:"source"`
	// Intro is the markdown between the previous block and this one.
	Intro string `json:"intro"`
}

// Runnable reports whether the block is python code.
func (b Block) Runnable() bool {
	switch strings.ToLower(b.Language) {
	case "python", "py", "python3":
		return true
	}
	return false
}

// Document is a parsed page.
type Document struct {
	Blocks []Block `json:"blocks"`
	// Trailer is the markdown after the last block.
	Trailer string `json:"trailer"`
}

// Block returns the block at index i.
func (d *Document) Block(i int) (Block, error) {
	if i < 0 || i >= len(d.Blocks) {
		return Block{}, fmt.Errorf("block %d out of range (have %d)", i, len(d.Blocks))
	}
	return d.Blocks[i], nil
}

// Load reads and parses the markdown file at path.
func Load(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return Parse(src), nil
}

// Parse extracts fenced code blocks from markdown source, including those
// nested in lists and block quotes, in document order.
func Parse(src []byte) *Document {
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	doc := &Document{}
	prev := 0
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		fc, ok := n.(*ast.FencedCodeBlock)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		start, end := fenceBounds(fc, src, prev)
		if start < prev {
			start = prev
		}
		var code bytes.Buffer
		lines := fc.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			code.Write(seg.Value(src))
		}
		doc.Blocks = append(doc.Blocks, Block{
			Index:    len(doc.Blocks),
			Language: string(fc.Language(src)),
			Source:   code.String(),
			Intro:    strings.TrimSpace(string(src[prev:start])),
		})
		prev = end
		return ast.WalkSkipChildren, nil
	})
	doc.Trailer = strings.TrimSpace(string(src[prev:]))
	return doc
}

// fenceBounds returns the byte range of a fenced block including both
// fence lines. from is where the search for the opening fence begins.
func fenceBounds(fc *ast.FencedCodeBlock, src []byte, from int) (int, int) {
	lines := fc.Lines()
	var start int
	switch {
	case fc.Info != nil:
		start = lineStart(src, fc.Info.Segment.Start)
	case lines.Len() > 0:
		// The opening fence is the line before the first code line.
		start = lineStart(src, lineStart(src, lines.At(0).Start)-1)
	default:
		start = findFence(src, from)
	}

	last := lineEnd(src, start)
	if lines.Len() > 0 {
		last = lines.At(lines.Len() - 1).Stop
	}
	return start, lineEnd(src, last)
}

// findFence returns the offset of the first fence line at or after from.
func findFence(src []byte, from int) int {
	for i := from; i < len(src); i = lineEnd(src, i) {
		// Skip indentation and list or quote markers.
		line := bytes.TrimLeft(src[i:lineEnd(src, i)], " \t>-*+.)0123456789")
		if bytes.HasPrefix(line, []byte("```")) || bytes.HasPrefix(line, []byte("~~~")) {
			return i
		}
	}
	return from
}

func lineStart(src []byte, i int) int {
	if i < 0 {
		return 0
	}
	if i > len(src) {
		i = len(src)
	}
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	return i
}

func lineEnd(src []byte, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	if i < len(src) {
		i++
	}
	return i
}
