package conversation

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/toolbox"
	"github.com/pkg/errors"
)

type promptData struct {
	UserSystem      string
	ReasoningSystem string
	AssistantSystem string

	Document string
	History  string

	UserName      string
	AssistantName string
	ReasoningName string
	Marker        string
	ToolMarker    string
	ToolSchema    string
}

// Prompts renders the prompt of every step. It is immutable and can be
// shared by concurrent conversations.
type Prompts struct {
	opening      *template.Template
	reasoning    *template.Template
	assistant    *template.Template
	followup     *template.Template
	interstitial *template.Template
	toolCall     *template.Template

	base promptData
}

func parse(name string, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse %s prompt", name)
	}
	return t, nil
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "could not render %s prompt", t.Name())
	}
	return strings.TrimSpace(buf.String()), nil
}

func NewPrompts(
	ps *settings.PromptSettings,
	personas settings.PersonaSettings,
	toolMarker string,
	tb *toolbox.Toolbox,
) (*Prompts, error) {
	if ps == nil {
		return nil, errors.New("no prompt settings")
	}

	base := promptData{
		UserName:      personas.User,
		AssistantName: personas.Assistant,
		ReasoningName: personas.Reasoning,
		Marker:        personas.AssistantMarker,
		ToolMarker:    toolMarker,
	}
	if tb != nil {
		schema, err := tb.DescribeJSON()
		if err != nil {
			return nil, err
		}
		base.ToolSchema = schema
	}

	// System prompts may refer to persona names, they are rendered once here.
	for _, s := range []struct {
		name string
		text string
		dst  *string
	}{
		{"user-system", ps.UserSystem, &base.UserSystem},
		{"reasoning-system", ps.ReasoningSystem, &base.ReasoningSystem},
		{"assistant-system", ps.AssistantSystem, &base.AssistantSystem},
	} {
		t, err := parse(s.name, s.text)
		if err != nil {
			return nil, err
		}
		v, err := render(t, base)
		if err != nil {
			return nil, err
		}
		*s.dst = v
	}

	ret := &Prompts{base: base}
	var err error
	for _, s := range []struct {
		name string
		text string
		dst  **template.Template
	}{
		{"opening", ps.Opening, &ret.opening},
		{"reasoning", ps.Reasoning, &ret.reasoning},
		{"assistant", ps.Assistant, &ret.assistant},
		{"followup", ps.Followup, &ret.followup},
		{"interstitial", ps.Interstitial, &ret.interstitial},
		{"tool-call", ps.ToolCall, &ret.toolCall},
	} {
		if *s.dst, err = parse(s.name, s.text); err != nil {
			return nil, err
		}
	}

	return ret, nil
}

func (p *Prompts) with(document string, history string) promptData {
	d := p.base
	d.Document = document
	d.History = history
	return d
}
