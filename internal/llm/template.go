// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template is a named, versioned prompt. Bumping Version invalidates every
// cached reply produced by the previous wording.
type Template struct {
	Name    string
	Version string
	System  *template.Template
	User    *template.Template

	// JSON requests a JSON-only reply from the backend.
	JSON bool
}

// NewTemplate parses the system and user texts. It panics on a parse error
// and is meant for package-level template definitions.
func NewTemplate(name, version, system, user string) *Template {
	return &Template{
		Name:    name,
		Version: version,
		System:  template.Must(template.New(name + ".system").Parse(system)),
		User:    template.Must(template.New(name + ".user").Parse(user)),
		JSON:    true,
	}
}

// Render executes both templates with params.
func (t *Template) Render(params any) (Prompt, error) {
	system, err := execute(t.System, params)
	if err != nil {
		return Prompt{}, fmt.Errorf("system prompt: %w", err)
	}
	user, err := execute(t.User, params)
	if err != nil {
		return Prompt{}, fmt.Errorf("user prompt: %w", err)
	}
	return Prompt{System: system, User: user, JSON: t.JSON}, nil
}

func execute(tmpl *template.Template, params any) (string, error) {
	if tmpl == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}
