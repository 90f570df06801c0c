package stage

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var defaultPrompts embed.FS

// Prompts renders stage prompts. Built-in templates can be overridden by
// files with the same name in a directory.
type Prompts struct {
	set *template.Template
}

var promptFuncs = template.FuncMap{
	"join": strings.Join,
}

// LoadPrompts parses the built-in templates, then any *.tmpl file in dir.
// An empty dir uses the built-ins only.
func LoadPrompts(dir string) (*Prompts, error) {
	set, err := template.New("prompts").Funcs(promptFuncs).ParseFS(defaultPrompts, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing built-in prompts: %w", err)
	}
	if dir == "" {
		return &Prompts{set: set}, nil
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.tmpl"))
	if err != nil {
		return nil, fmt.Errorf("listing prompts in %s: %w", dir, err)
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading prompt %s: %w", path, err)
		}
		if _, err := set.New(filepath.Base(path)).Parse(string(data)); err != nil {
			return nil, fmt.Errorf("parsing prompt %s: %w", path, err)
		}
	}
	return &Prompts{set: set}, nil
}

// MustDefaultPrompts returns the built-in prompts and panics if they do not parse.
func MustDefaultPrompts() *Prompts {
	p, err := LoadPrompts("")
	if err != nil {
		panic(err)
	}
	return p
}

// Render executes the named template (without the .tmpl suffix).
func (p *Prompts) Render(name string, data any) (string, error) {
	tmpl := p.set.Lookup(name + ".tmpl")
	if tmpl == nil {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (p *Prompts) pair(name string, data any) (system, user string, err error) {
	system, err = p.Render(name+"_system", data)
	if err != nil {
		return "", "", err
	}
	user, err = p.Render(name+"_user", data)
	if err != nil {
		return "", "", err
	}
	return system, user, nil
}
