package config

import (
	"path"
	"reflect"

	"github.com/invopop/jsonschema"

	"go.viam.com/swerve/control"
	"go.viam.com/swerve/logging"
)

var (
	profileKindType = reflect.TypeOf(control.ProfileKind(0))
	logLevelType    = reflect.TypeOf(logging.Level(0))
)

// Schema returns the JSON schema of a config file.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		// Both the file and the controller config are called Config.
		Namer: func(t reflect.Type) string {
			return path.Base(t.PkgPath()) + "." + t.Name()
		},
		// Both enums are integers in Go and strings in the file.
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case profileKindType:
				return stringEnum(
					control.LinearProfileKind.String(),
					control.TrapezoidalProfileKind.String(),
					control.SCurveProfileKind.String(),
				)
			case logLevelType:
				return stringEnum("debug", "info", "warn", "error")
			default:
				return nil
			}
		},
	}
	return r.Reflect(&Config{})
}

func stringEnum(values ...string) *jsonschema.Schema {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}
