// Package render produces the bot's reply bodies. One template per
// disposition, keyed by the disposition name; defaults are embedded and a
// directory of overrides can shadow them.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"kudosbot/internal/domain"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// Context is what a reply template sees.
type Context struct {
	Comment   domain.Comment
	Parent    *domain.Comment
	Bot       string
	Community string
}

type Renderer interface {
	Render(dispo domain.Disposition, cm domain.Comment, parent *domain.Comment) (string, error)
}

// TemplateRenderer renders replies from text templates. Trivial dispositions
// have no template: the bot never replies to them.
type TemplateRenderer struct {
	Bot       string
	Community string

	tmpl *template.Template
}

func New(bot, community, overrideDir string) (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(defaultTemplates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	if overrideDir != "" {
		entries, err := os.ReadDir(overrideDir)
		if err != nil {
			return nil, fmt.Errorf("read template dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".tmpl" {
				continue
			}
			if _, err := tmpl.ParseFiles(filepath.Join(overrideDir, e.Name())); err != nil {
				return nil, fmt.Errorf("parse template override %s: %w", e.Name(), err)
			}
		}
	}
	return &TemplateRenderer{Bot: bot, Community: community, tmpl: tmpl}, nil
}

func (r *TemplateRenderer) Render(dispo domain.Disposition, cm domain.Comment, parent *domain.Comment) (string, error) {
	name := dispo.String() + ".tmpl"
	t := r.tmpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("no reply template for disposition %q", dispo)
	}
	var buf bytes.Buffer
	err := t.Execute(&buf, Context{Comment: cm, Parent: parent, Bot: r.Bot, Community: r.Community})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
