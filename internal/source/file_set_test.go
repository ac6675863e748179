package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSetVersioning(t *testing.T) {
	fs := NewFileSet()

	id1 := fs.Add("test.arc.yaml", []byte("hello world"), 0)
	id2 := fs.Add("test.arc.yaml", []byte("hello universe"), 0)
	if id1 != 0 || id2 != 1 {
		t.Fatalf("expected ids 0 and 1, got %d and %d", id1, id2)
	}

	latestID, exists := fs.GetLatest("test.arc.yaml")
	if !exists || latestID != id2 {
		t.Errorf("expected latest ID %d, got %d (exists=%v)", id2, latestID, exists)
	}
	if got := string(fs.Get(id1).Content); got != "hello world" {
		t.Errorf("expected first file content 'hello world', got %q", got)
	}
	if fs.Len() != 2 {
		t.Errorf("expected 2 files, got %d", fs.Len())
	}
}

func TestResolveAndSpanAt(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("mem", []byte("ab\ncde\n\nf"))

	tests := []struct {
		pos  LineCol
		off  uint32
		want LineCol
	}{
		{LineCol{Line: 1, Col: 1}, 0, LineCol{Line: 1, Col: 1}},
		{LineCol{Line: 2, Col: 2}, 4, LineCol{Line: 2, Col: 2}},
		{LineCol{Line: 3, Col: 1}, 7, LineCol{Line: 3, Col: 1}},
		{LineCol{Line: 4, Col: 1}, 8, LineCol{Line: 4, Col: 1}},
	}
	for _, tt := range tests {
		sp := fs.SpanAt(id, tt.pos, 1)
		if sp.Start != tt.off {
			t.Errorf("SpanAt(%v): expected offset %d, got %d", tt.pos, tt.off, sp.Start)
		}
		start, _ := fs.Resolve(sp)
		if start != tt.want {
			t.Errorf("Resolve(%v): expected %v, got %v", sp, tt.want, start)
		}
	}

	if sp := fs.SpanAt(id, LineCol{Line: 10, Col: 1}, 5); sp.Start != 9 || sp.End != 9 {
		t.Errorf("expected clamped span 9-9, got %v", sp)
	}
}

func TestGetLine(t *testing.T) {
	fs := NewFileSet()
	f := fs.Get(fs.AddVirtual("mem", []byte("first\r\nsecond\nthird")))

	for i, want := range []string{"first", "second", "third", ""} {
		if got := f.GetLine(uint32(i + 1)); got != want {
			t.Errorf("line %d: expected %q, got %q", i+1, want, got)
		}
	}
	if f.GetLine(0) != "" {
		t.Error("line 0 must be empty")
	}
}

func TestLoadNormalizesInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.yaml")
	if err := os.WriteFile(path, []byte("\xEF\xBB\xBFa\r\nb"), 0o600); err != nil {
		t.Fatal(err)
	}
	fs := NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f := fs.Get(id)
	if string(f.Content) != "a\nb" {
		t.Errorf("expected normalized content, got %q", f.Content)
	}
	if !f.Flags.Has(FileStrippedBOM | FileCRLF) || f.Flags.Has(FileVirtual) {
		t.Errorf("expected BOM and CRLF flags only, got %b", f.Flags)
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 10, End: 20}
	b := Span{File: 1, Start: 5, End: 12}
	if got := a.Cover(b); got != (Span{File: 1, Start: 5, End: 20}) {
		t.Errorf("unexpected cover %v", got)
	}
	if got := a.Cover(Span{File: 2, Start: 0, End: 1}); got != a {
		t.Errorf("cross-file cover must keep the receiver, got %v", got)
	}
	if !a.Contains(10) || a.Contains(20) {
		t.Error("Contains must be half-open")
	}
}

func TestLineColString(t *testing.T) {
	if got := (LineCol{Line: 3, Col: 14}).String(); got != "3:14" {
		t.Errorf("LineCol.String() = %q, want %q", got, "3:14")
	}
}
