package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type outreachEmailData struct {
	baseEmailData
	Paragraphs []string
}

type qualifyingEmailData struct {
	baseEmailData
	QualifyingNotification
	SuggestedAction string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderOutreachEmail(subject, body string) (string, error) {
	return renderEmailTemplate("outreach.html", outreachEmailData{
		baseEmailData: baseEmailData{Title: subject},
		Paragraphs:    paragraphs(body),
	})
}

func renderQualifyingEmail(n QualifyingNotification) (string, error) {
	return renderEmailTemplate("qualifying.html", qualifyingEmailData{
		baseEmailData: baseEmailData{
			Title:      "New Qualifying Lead",
			Heading:    "New Qualifying Lead",
			Subheading: fmt.Sprintf("Score: %d", n.Score),
			CTALabel:   "Open lead",
			CTAURL:     n.LeadURL,
		},
		QualifyingNotification: n,
		SuggestedAction:        "Follow up with lead",
	})
}

// paragraphs splits plain text on blank lines.
func paragraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
