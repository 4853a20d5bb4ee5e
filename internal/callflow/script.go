package callflow

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"

	"call-relay/internal/calls"
)

// DefaultScript is used when no call script is configured.
const DefaultScript = `Hello {{.Name}}, this is a courtesy call from our team.
For security, could you please confirm the email address we have on file?
Thank you, {{.Name}}. I see you are interested in learning more about our services.
Could I confirm a few details so we can guide you appropriately?
We would like to schedule a follow-up. Which day and time work best for you?`

// Script renders the task text sent to the calling provider for a lead.
type Script struct {
	tmpl *template.Template
}

func ParseScript(text string) (*Script, error) {
	if text == "" {
		text = DefaultScript
	}
	t, err := template.New("call").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("callflow: parse script: %w", err)
	}
	return &Script{tmpl: t}, nil
}

type scriptData struct {
	Name        string
	Email       string
	Phone       string
	Correlation map[string]string
}

func (s *Script) Render(lead calls.Lead) (string, error) {
	if s == nil || s.tmpl == nil {
		return "", errors.New("callflow: script not configured")
	}
	var buf bytes.Buffer
	err := s.tmpl.Execute(&buf, scriptData{
		Name:        lead.Name,
		Email:       lead.Email,
		Phone:       lead.Phone,
		Correlation: lead.Correlation,
	})
	if err != nil {
		return "", fmt.Errorf("callflow: render script: %w", err)
	}
	return buf.String(), nil
}
