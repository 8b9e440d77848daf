package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	beatguardschema "github.com/Paintersrp/beatguard/schema"
)

const configSchemaURL = "config.v1.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(configSchemaURL, bytes.NewReader(beatguardschema.ConfigV1Schema)); err != nil {
		return nil, fmt.Errorf("add config schema: %w", err)
	}
	schema, err := compiler.Compile(configSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	return schema, nil
})

// overrides names the flag and environment variable that replace a file
// field, so a schema error points at every place the value can come from.
var overrides = map[string]string{
	"listen":         "--listen-addr, " + EnvListenAddr,
	"timeoutSeconds": "--timeout-secs, " + EnvTimeoutSecs,
	"metrics.addr":   "--metrics-addr, " + EnvMetricsAddr,
	"logging.format": "--log-format, " + EnvLogFormat,
	"child.command":  "BINARY argument",
	"child.args":     "arguments after BINARY",
}

// FieldProblem is one schema violation at a config field path such as
// "child.args[1]".
type FieldProblem struct {
	Field   string
	Message string
}

func (p FieldProblem) String() string {
	line := p.Field + ": " + p.Message
	if hint, ok := overrides[topLevelField(p.Field)]; ok {
		line += " (also set by " + hint + ")"
	}
	return line
}

// SchemaError lists every schema violation found in a config file.
type SchemaError struct {
	Problems []FieldProblem
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("config does not match schema:")
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p.String())
	}
	return b.String()
}

func validateAgainstSchema(doc map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	instance, err := jsonInstance(doc)
	if err != nil {
		return fmt.Errorf("prepare config for schema validation: %w", err)
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	var vErr *jsonschema.ValidationError
	if !errors.As(err, &vErr) {
		return fmt.Errorf("validate config: %w", err)
	}
	return &SchemaError{Problems: collectProblems(vErr)}
}

// jsonInstance converts the YAML document into the JSON value model the
// validator understands, with numbers as json.Number.
func jsonInstance(doc map[string]any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// collectProblems flattens the validator's error tree into its leaves, which
// carry the specific messages, sorted by field.
func collectProblems(root *jsonschema.ValidationError) []FieldProblem {
	seen := make(map[FieldProblem]bool)
	var problems []FieldProblem
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, cause := range e.Causes {
				walk(cause)
			}
			return
		}
		p := FieldProblem{Field: fieldPath(e.InstanceLocation), Message: e.Message}
		if !seen[p] {
			seen[p] = true
			problems = append(problems, p)
		}
	}
	walk(root)
	sort.SliceStable(problems, func(i, j int) bool { return problems[i].Field < problems[j].Field })
	return problems
}

// fieldPath renders a JSON pointer as a dotted config path. The document root
// is reported as "config".
func fieldPath(pointer string) string {
	var b strings.Builder
	for _, segment := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		if segment == "" {
			continue
		}
		segment = strings.NewReplacer("~1", "/", "~0", "~").Replace(segment)
		if _, err := strconv.Atoi(segment); err == nil {
			fmt.Fprintf(&b, "[%s]", segment)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	if b.Len() == 0 {
		return "config"
	}
	return b.String()
}

func topLevelField(field string) string {
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	return field
}
