package program

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"github.com/jingkaihe/webskill/pkg/program/env"
)

// EnvImportPath is the import path programs use for the env package.
const EnvImportPath = "webskill/env"

// Symbols exports the env package to the interpreter.
var Symbols = interp.Exports{
	EnvImportPath + "/env": {
		"Env":            reflect.ValueOf((*env.Env)(nil)),
		"Locators":       reflect.ValueOf((*env.Locators)(nil)),
		"Options":        reflect.ValueOf((*env.Options)(nil)),
		"Result":         reflect.ValueOf((*env.Result)(nil)),
		"DefaultOptions": reflect.ValueOf(env.DefaultOptions),
		"Resolve":        reflect.ValueOf(env.Resolve),
		"Fail":           reflect.ValueOf(env.Fail),
		"Done":           reflect.ValueOf(env.Done),
		"Arg":            reflect.ValueOf(env.Arg),
	},
}
