package skills

import (
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// TypeArgs are the arguments of a type skill.
type TypeArgs struct {
	Text string `json:"text,omitempty" jsonschema:"description=Text to enter into the control"`
}

// SelectArgs are the arguments of a select skill.
type SelectArgs struct {
	Value string `json:"value,omitempty" jsonschema:"description=Option value to select"`
}

// NavigateArgs are the arguments of a navigate skill.
type NavigateArgs struct {
	URL string `json:"url,omitempty" jsonschema:"description=Optional URL to open instead of following the link"`
}

// NoArgs is the argument set of actions that take no input.
type NoArgs struct{}

func argsType(action string) any {
	switch action {
	case skill.ActionType:
		return &TypeArgs{}
	case skill.ActionSelect:
		return &SelectArgs{}
	case skill.ActionNavigate:
		return &NavigateArgs{}
	}
	return &NoArgs{}
}

// ArgsSchema returns the JSON schema of the arguments an action accepts.
func ArgsSchema(action string) (json.RawMessage, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(argsType(action))
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal args schema")
	}
	return data, nil
}

// Arg describes one argument declared by a skill's args_schema.
type Arg struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// SchemaArgs lists the properties of an args schema sorted by name.
// Properties without a type are reported as strings.
func SchemaArgs(raw json.RawMessage) []Arg {
	if len(raw) == 0 {
		return nil
	}
	var schema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	out := make([]Arg, 0, len(schema.Properties))
	for name, p := range schema.Properties {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		out = append(out, Arg{Name: name, Type: typ, Description: p.Description, Required: required[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
