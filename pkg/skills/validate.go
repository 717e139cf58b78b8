package skills

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// ValidationError is a single problem found in a skill record.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var requiredKeys = []string{"id", "domain", "action", "locators", "preconditions", "program", "meta"}

// Validate checks that s can be executed by a runtime for language. All
// problems are returned together as a *multierror.Error.
func Validate(s *skill.Skill, language string) error {
	var result *multierror.Error
	add := func(field, msg string) {
		result = multierror.Append(result, &ValidationError{Field: field, Message: msg})
	}

	if s.ID == "" {
		add("id", "is required")
	}
	if s.Domain == "" {
		add("domain", "is required")
	}
	if s.Action == "" {
		add("action", "is required")
	}
	if s.Locators.Selector == "" {
		add("locators.selector", "is required")
	}
	if len(s.Preconditions.URLMatches) == 0 {
		add("preconditions.url_matches", "must not be empty")
	}
	if len(s.Preconditions.Exists) == 0 {
		add("preconditions.exists", "must not be empty")
	}
	if s.Program.Language != language {
		add("program.language", fmt.Sprintf("is %q, runtime expects %q", s.Program.Language, language))
	}
	if s.Program.Entry == "" {
		add("program.entry", "must be a non-empty string")
	}
	if s.Program.Code == "" {
		add("program.code", "is required")
	}
	if s.Meta.SchemaVersion == "" {
		add("meta.schema_version", "is required")
	}
	return result.ErrorOrNil()
}

// ValidateJSON checks that every top-level section is present before
// validating the decoded record.
func ValidateJSON(data []byte, language string) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return errors.Wrap(err, "skill is not a JSON object")
	}
	var result *multierror.Error
	for _, k := range requiredKeys {
		if v, ok := keys[k]; !ok || string(v) == "null" {
			result = multierror.Append(result, &ValidationError{Field: k, Message: "is missing"})
		}
	}
	var s skill.Skill
	if err := json.Unmarshal(data, &s); err != nil {
		return multierror.Append(result, errors.Wrap(err, "failed to decode skill"))
	}
	if err := Validate(&s, language); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
