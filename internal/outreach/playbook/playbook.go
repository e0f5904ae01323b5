// Package playbook loads sequence definitions and their templates from YAML
// files and syncs them into the store.
package playbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/platform/validator"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Playbook is one sequence file.
type Playbook struct {
	ID          string         `yaml:"id" validate:"required,uuid"`
	Name        string         `yaml:"name" validate:"required,max=100"`
	Description string         `yaml:"description"`
	Templates   []TemplateSpec `yaml:"templates" validate:"dive"`
	Steps       []StepSpec     `yaml:"steps" validate:"required,min=1,dive"`
}

type TemplateSpec struct {
	ID      string `yaml:"id" validate:"required,max=100"`
	Channel string `yaml:"channel" validate:"required,oneof=sms email ai_call"`
	Subject string `yaml:"subject" validate:"required_if=Channel email"`
	Body    string `yaml:"body" validate:"required"`
}

type StepSpec struct {
	Channel          string   `yaml:"channel" validate:"required,oneof=sms email ai_call"`
	DelayHours       int      `yaml:"delay_hours" validate:"gte=0"`
	Template         string   `yaml:"template" validate:"required"`
	StartHour        int      `yaml:"start_hour" validate:"gte=0,lte=23"`
	EndHour          int      `yaml:"end_hour" validate:"gte=1,lte=24,gtfield=StartHour"`
	Days             []string `yaml:"days" validate:"omitempty,dive,weekday"`
	SkipIfReplied    bool     `yaml:"skip_if_replied"`
	SkipIfScoreAbove *int     `yaml:"skip_if_score_above"`
}

// Parse decodes and validates a playbook.
func Parse(data []byte) (Playbook, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Playbook{}, errors.New("playbook: payload is empty")
	}
	var pb Playbook
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pb); err != nil {
		return Playbook{}, fmt.Errorf("playbook: decode: %w", err)
	}
	if err := pb.Validate(); err != nil {
		return Playbook{}, err
	}
	return pb, nil
}

// LoadFile reads and validates one playbook file.
func LoadFile(path string) (Playbook, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Playbook{}, fmt.Errorf("playbook: read %s: %w", path, err)
	}
	pb, err := Parse(content)
	if err != nil {
		return Playbook{}, fmt.Errorf("%s: %w", path, err)
	}
	return pb, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, sorted by file name.
func LoadDir(dir string) ([]Playbook, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("playbook: read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Playbook
	seen := make(map[string]string)
	for _, name := range names {
		pb, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[pb.ID]; ok {
			return nil, fmt.Errorf("playbook: id %s used by both %s and %s", pb.ID, prev, name)
		}
		seen[pb.ID] = name
		out = append(out, pb)
	}
	return out, nil
}

// Validate checks struct tags plus cross-references: every step names a
// template defined in this playbook on the same channel.
func (pb Playbook) Validate() error {
	if err := validator.Validate.Struct(pb); err != nil {
		return fmt.Errorf("playbook %q: %w", pb.Name, err)
	}
	templates := make(map[string]TemplateSpec, len(pb.Templates))
	for _, t := range pb.Templates {
		if _, dup := templates[t.ID]; dup {
			return fmt.Errorf("playbook %q: template %s defined twice", pb.Name, t.ID)
		}
		templates[t.ID] = t
	}
	for i, s := range pb.Steps {
		t, ok := templates[s.Template]
		if !ok {
			return fmt.Errorf("playbook %q: step %d references unknown template %s", pb.Name, i+1, s.Template)
		}
		if t.Channel != s.Channel {
			return fmt.Errorf("playbook %q: step %d is %s but template %s is %s", pb.Name, i+1, s.Channel, t.ID, t.Channel)
		}
	}
	return nil
}

// Sequence converts the playbook to its domain form. Steps are numbered from 1.
func (pb Playbook) Sequence() (domain.Sequence, error) {
	id, err := uuid.Parse(pb.ID)
	if err != nil {
		return domain.Sequence{}, fmt.Errorf("playbook %q: %w", pb.Name, err)
	}
	seq := domain.Sequence{ID: id, Name: pb.Name, Description: pb.Description}
	for i, s := range pb.Steps {
		ch, err := domain.ParseChannel(s.Channel)
		if err != nil {
			return domain.Sequence{}, err
		}
		days, err := domain.ParseSendDays(strings.Join(s.Days, ","))
		if err != nil {
			return domain.Sequence{}, err
		}
		seq.Steps = append(seq.Steps, domain.Step{
			Number:           i + 1,
			Channel:          ch,
			DelayHours:       s.DelayHours,
			TemplateID:       s.Template,
			StartHour:        s.StartHour,
			EndHour:          s.EndHour,
			SendDays:         days,
			SkipIfReplied:    s.SkipIfReplied,
			SkipIfScoreAbove: s.SkipIfScoreAbove,
		})
	}
	return seq, nil
}

// DomainTemplates converts the playbook's templates.
func (pb Playbook) DomainTemplates() []domain.Template {
	out := make([]domain.Template, 0, len(pb.Templates))
	for _, t := range pb.Templates {
		out = append(out, domain.Template{
			ID:      t.ID,
			Channel: domain.Channel(t.Channel),
			Subject: t.Subject,
			Body:    t.Body,
		})
	}
	return out
}

// Sync writes templates first, then the sequence, for every playbook.
func Sync(ctx context.Context, store repository.SequenceWriter, playbooks []Playbook) (int, error) {
	synced := 0
	for _, pb := range playbooks {
		seq, err := pb.Sequence()
		if err != nil {
			return synced, err
		}
		for _, tpl := range pb.DomainTemplates() {
			if err := store.UpsertTemplate(ctx, tpl); err != nil {
				return synced, fmt.Errorf("upsert template %s: %w", tpl.ID, err)
			}
		}
		if err := store.UpsertSequence(ctx, seq); err != nil {
			return synced, fmt.Errorf("upsert sequence %s: %w", pb.Name, err)
		}
		synced++
	}
	return synced, nil
}
