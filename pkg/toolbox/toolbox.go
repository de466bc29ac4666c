package toolbox

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Description is what a model is shown about one tool it can request.
type Description struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// Toolbox holds the tools advertised in tool-call prompts. Tools are never
// executed, generated calls are stored as dialogue turns.
type Toolbox struct {
	descriptions []Description
	reflector    *jsonschema.Reflector
}

func NewToolbox() *Toolbox {
	return &Toolbox{
		reflector: &jsonschema.Reflector{
			// Expand definitions inline instead of using $refs
			DoNotReference: true,
		},
	}
}

// Register adds a tool whose arguments are described by the struct args.
// Registering an existing name replaces it.
func (tb *Toolbox) Register(name string, description string, args interface{}) error {
	if name == "" {
		return errors.New("tool name is empty")
	}
	schema := tb.reflector.Reflect(args)
	if schema == nil {
		return errors.Errorf("could not reflect arguments of tool %s", name)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}

	d := Description{Name: name, Description: description, Parameters: schema}
	for i, existing := range tb.descriptions {
		if existing.Name == name {
			tb.descriptions[i] = d
			return nil
		}
	}
	tb.descriptions = append(tb.descriptions, d)
	return nil
}

func (tb *Toolbox) Descriptions() []Description {
	return append([]Description{}, tb.descriptions...)
}

func (tb *Toolbox) HasTool(name string) bool {
	for _, d := range tb.descriptions {
		if d.Name == name {
			return true
		}
	}
	return false
}

// DescribeJSON renders every tool as an indented JSON array.
func (tb *Toolbox) DescribeJSON() (string, error) {
	b, err := json.MarshalIndent(tb.descriptions, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "could not marshal tool descriptions")
	}
	return string(b), nil
}

// Match returns the name of the first tool whose argument schema accepts
// args. Markdown code fences around the JSON are ignored.
func (tb *Toolbox) Match(args string) (string, error) {
	doc := gojsonschema.NewStringLoader(stripFences(args))

	problems := []string{}
	for _, d := range tb.descriptions {
		schema, err := validationSchema(d.Parameters)
		if err != nil {
			return "", errors.Wrapf(err, "could not prepare schema of %s", d.Name)
		}
		result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), doc)
		if err != nil {
			return "", errors.Wrap(err, "tool call arguments are not valid JSON")
		}
		if result.Valid() {
			return d.Name, nil
		}
		for _, e := range result.Errors() {
			problems = append(problems, d.Name+": "+e.String())
		}
	}
	if len(problems) == 0 {
		return "", errors.New("no tools registered")
	}
	return "", errors.Errorf("arguments match no tool: %s", strings.Join(problems, "; "))
}

// validationSchema drops the draft and id keywords, the validator only
// knows older drafts and would try to resolve them.
func validationSchema(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	ret := map[string]interface{}{}
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, err
	}
	delete(ret, "$schema")
	delete(ret, "$id")
	return ret, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

type WeatherQuery struct {
	Location string `json:"location" jsonschema:"description=The city and state or country"`
	Unit     string `json:"unit,omitempty" jsonschema:"enum=celsius,enum=fahrenheit"`
}

// NewDefaultToolbox returns the toolbox advertised when the user persona asks for an external action.
func NewDefaultToolbox() *Toolbox {
	tb := NewToolbox()
	// WeatherQuery is a plain struct, reflection cannot fail.
	_ = tb.Register("get_weather", "Get the current weather for a given location.", &WeatherQuery{})
	return tb
}
