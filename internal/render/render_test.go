package render_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kudosbot/internal/domain"
	"kudosbot/internal/render"
)

func TestRenderConfirmed(t *testing.T) {
	r, err := render.New("kudosbot", "changemyview", "")
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	parent := &domain.Comment{ID: "p1", Author: "bob"}
	out, err := r.Render(domain.Confirmed, domain.Comment{ID: "c1", Author: "alice"}, parent)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "bob") {
		t.Fatalf("confirmed reply should name the awardee, got %q", out)
	}
	if !strings.Contains(out, "changemyview") {
		t.Fatalf("reply footer should name the community, got %q", out)
	}
}

func TestRenderTrivialHasNoTemplate(t *testing.T) {
	r, err := render.New("kudosbot", "changemyview", "")
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	if _, err := r.Render(domain.TokenMissing, domain.Comment{}, nil); err == nil {
		t.Fatal("expected error for trivial disposition")
	}
}

func TestRenderOverrideDir(t *testing.T) {
	dir := t.TempDir()
	custom := "Point to {{.Parent.Author}} from {{.Comment.Author}}."
	if err := os.WriteFile(filepath.Join(dir, "confirmed.tmpl"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := render.New("kudosbot", "changemyview", dir)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := r.Render(domain.Confirmed, domain.Comment{Author: "alice"}, &domain.Comment{Author: "bob"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Point to bob from alice." {
		t.Fatalf("override not applied, got %q", out)
	}
}
