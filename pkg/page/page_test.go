package page

import (
	"os"
	"path/filepath"
	"testing"
)

const sample = "# Intro\n\nSome prose.\n\n```python\nprint('hi')\nx = 1\n```\n\nBetween.\n\n```\nplain\n```\n\n~~~py\n~~~\n\nThe end.\n"

func TestParse(t *testing.T) {
	doc := Parse([]byte(sample))
	if len(doc.Blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(doc.Blocks))
	}

	tests := []struct {
		lang, source, intro string
		runnable            bool
	}{
		{"python", "print('hi')\nx = 1\n", "# Intro\n\nSome prose.", true},
		{"", "plain\n", "Between.", false},
		{"py", "", "", true},
	}
	for i, tt := range tests {
		b := doc.Blocks[i]
		if b.Index != i {
			t.Errorf("block %d: Index = %d", i, b.Index)
		}
		if b.Language != tt.lang {
			t.Errorf("block %d: Language = %q, want %q", i, b.Language, tt.lang)
		}
		if b.Source != tt.source {
			t.Errorf("block %d: Source = %q, want %q", i, b.Source, tt.source)
		}
		if b.Intro != tt.intro {
			t.Errorf("block %d: Intro = %q, want %q", i, b.Intro, tt.intro)
		}
		if b.Runnable() != tt.runnable {
			t.Errorf("block %d: Runnable() = %v", i, b.Runnable())
		}
	}
	if doc.Trailer != "The end." {
		t.Errorf("Trailer = %q", doc.Trailer)
	}
}

func TestParse_NoBlocks(t *testing.T) {
	doc := Parse([]byte("just text\n"))
	if len(doc.Blocks) != 0 {
		t.Fatalf("got %d blocks", len(doc.Blocks))
	}
	if doc.Trailer != "just text" {
		t.Errorf("Trailer = %q", doc.Trailer)
	}
}

func TestDocument_Block(t *testing.T) {
	doc := Parse([]byte(sample))
	if _, err := doc.Block(3); err == nil {
		t.Errorf("expected out of range error")
	}
	if _, err := doc.Block(-1); err == nil {
		t.Errorf("expected out of range error")
	}
	b, err := doc.Block(1)
	if err != nil || b.Source != "plain\n" {
		t.Errorf("Block(1) = %+v, %v", b, err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Blocks) != 3 {
		t.Errorf("got %d blocks", len(doc.Blocks))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

const nested = "Steps:\n\n1. Install:\n\n   ```python\n   print(1)\n   ```\n\n2. Then quote:\n\n> ```python\n> print(2)\n> ```\n\nDone.\n"

func TestParse_NestedBlocks(t *testing.T) {
	doc := Parse([]byte(nested))
	if len(doc.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(doc.Blocks))
	}

	tests := []struct {
		source, intro string
	}{
		{"print(1)\n", "Steps:\n\n1. Install:"},
		{"print(2)\n", "2. Then quote:"},
	}
	for i, tt := range tests {
		b := doc.Blocks[i]
		if b.Index != i || b.Language != "python" {
			t.Errorf("block %d: Index = %d, Language = %q", i, b.Index, b.Language)
		}
		if b.Source != tt.source {
			t.Errorf("block %d: Source = %q, want %q", i, b.Source, tt.source)
		}
		if b.Intro != tt.intro {
			t.Errorf("block %d: Intro = %q, want %q", i, b.Intro, tt.intro)
		}
	}
	if doc.Trailer != "Done." {
		t.Errorf("Trailer = %q", doc.Trailer)
	}
}
