package usecase

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"recipechat/internal/domain"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

// prompt is a parsed user-message template plus the system message sent
// with it.
type prompt struct {
	tmpl *template.Template
	role string
}

func loadPrompt(name string) (*prompt, error) {
	body, err := promptTemplates.ReadFile("templates/" + name + "_prompt.txt")
	if err != nil {
		return nil, fmt.Errorf("template not found: %w", err)
	}
	role, err := promptTemplates.ReadFile("templates/" + name + "_role.txt")
	if err != nil {
		return nil, fmt.Errorf("template not found: %w", err)
	}
	tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &prompt{tmpl: tmpl, role: strings.TrimSpace(string(role))}, nil
}

// mustLoadPrompt panics on a broken embedded template; they are fixed at
// build time.
func mustLoadPrompt(name string) *prompt {
	p, err := loadPrompt(name)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *prompt) render(data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// PromptData is the input of the classifier and synthesizer templates.
type PromptData struct {
	Query      string
	Candidates []domain.Candidate
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}
}
