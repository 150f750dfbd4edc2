package email

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

// TemplateData is the context every communication template is rendered with
type TemplateData struct {
	SiteName string
	SiteURL  string
	FullName string
	Email    string
	ResetURL string
	NewEmail string
}

// Rendered is a rendered subject and body pair
type Rendered struct {
	Subject  string
	TextBody string
	HTMLBody string
}

type eventTemplates struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Templates renders communication events by code. Each code has a
// <code>.subject.txt and <code>.body.txt, and optionally <code>.body.html.
type Templates struct {
	byCode map[string]eventTemplates
}

// LoadTemplates parses the embedded communication templates
func LoadTemplates() (*Templates, error) {
	return parseTemplates(templateFS, "templates")
}

func parseTemplates(fsys fs.FS, dir string) (*Templates, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}

	t := &Templates{byCode: make(map[string]eventTemplates)}
	for _, entry := range entries {
		name := entry.Name()
		code, ok := strings.CutSuffix(name, ".subject.txt")
		if !ok {
			continue
		}

		var et eventTemplates
		if et.subject, err = texttemplate.ParseFS(fsys, dir+"/"+name); err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		if et.text, err = texttemplate.ParseFS(fsys, dir+"/"+code+".body.txt"); err != nil {
			return nil, fmt.Errorf("template %s body: %w", code, err)
		}
		htmlName := dir + "/" + code + ".body.html"
		if _, statErr := fs.Stat(fsys, htmlName); statErr == nil {
			if et.html, err = htmltemplate.ParseFS(fsys, htmlName); err != nil {
				return nil, fmt.Errorf("template %s html: %w", code, err)
			}
		}
		t.byCode[code] = et
	}
	return t, nil
}

// ErrUnknownTemplate is returned for codes without templates
var ErrUnknownTemplate = errors.New("unknown communication template")

// Render renders the templates registered for code
func (t *Templates) Render(code string, data TemplateData) (*Rendered, error) {
	et, ok := t.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, code)
	}

	var subject, text, html bytes.Buffer
	if err := et.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", code, err)
	}
	if err := et.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("render %s body: %w", code, err)
	}
	if et.html != nil {
		if err := et.html.Execute(&html, data); err != nil {
			return nil, fmt.Errorf("render %s html: %w", code, err)
		}
	}

	// subjects are a single line
	line := strings.Join(strings.Fields(subject.String()), " ")
	return &Rendered{
		Subject:  line,
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}
