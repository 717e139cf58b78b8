package skills

import (
	"encoding/json"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// ParseArgs turns key=value pairs into program arguments, converting values
// to the types declared by the skill's args schema.
func ParseArgs(schema json.RawMessage, pairs []string) (map[string]any, error) {
	types := make(map[string]string)
	for _, a := range SchemaArgs(schema) {
		types[a.Name] = a.Type
	}

	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.Errorf("invalid argument %q, expected key=value", kv)
		}
		val, err := coerce(v, types[k])
		if err != nil {
			return nil, errors.Wrapf(err, "argument %s", k)
		}
		out[k] = val
	}
	return out, nil
}

func coerce(v, typ string) (any, error) {
	var err error
	switch typ {
	case "boolean":
		var b bool
		err = mapstructure.WeakDecode(v, &b)
		return b, err
	case "integer":
		var n int64
		err = mapstructure.WeakDecode(v, &n)
		return n, err
	case "number":
		var f float64
		err = mapstructure.WeakDecode(v, &f)
		return f, err
	}
	return v, nil
}
