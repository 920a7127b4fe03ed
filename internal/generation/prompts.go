package generation

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

// Prompts renders outline and scene prompts.
type Prompts struct {
	outline *template.Template
	scene   *template.Template
}

// LoadPrompts parses the built-in templates. A non-empty path replaces the
// corresponding built-in template with the file's contents.
func LoadPrompts(outlinePath, scenePath string) (*Prompts, error) {
	outline, err := loadTemplate("outline", outlinePath)
	if err != nil {
		return nil, err
	}
	scene, err := loadTemplate("scene", scenePath)
	if err != nil {
		return nil, err
	}
	return &Prompts{outline: outline, scene: scene}, nil
}

// DefaultPrompts returns the built-in templates. It panics if they fail to parse.
func DefaultPrompts() *Prompts {
	p, err := LoadPrompts("", "")
	if err != nil {
		panic(err)
	}
	return p
}

func loadTemplate(name, path string) (*template.Template, error) {
	var content []byte
	var err error
	if path != "" {
		content, err = os.ReadFile(path)
	} else {
		content, err = templateFS.ReadFile("templates/" + name + ".tmpl")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s prompt template: %v", ErrInvalidConfig, name, err)
	}

	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s prompt template: %v", ErrInvalidConfig, name, err)
	}
	return tmpl, nil
}

// Outline renders the prompt for an outline request.
func (p *Prompts) Outline(req OutlineRequest) (string, error) {
	if req.ChapterTitle == "" {
		return "", fmt.Errorf("%w: chapter title", ErrEmptyInput)
	}
	return execute(p.outline, req)
}

// Scene renders the prompt for a scene request.
func (p *Prompts) Scene(req SceneRequest) (string, error) {
	if req.Scene.Title == "" && req.Scene.Summary == "" {
		return "", fmt.Errorf("%w: scene title or summary", ErrEmptyInput)
	}
	return execute(p.scene, req)
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s prompt template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
