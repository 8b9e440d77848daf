package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, expands and validates a beatguard config file.
func Load(path string) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	expandYAMLValues(raw)
	coerceInteger(raw, "timeoutSeconds")

	if err := validateAgainstSchema(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	expanded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: re-encode: %w", absPath, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(expanded))
	decoder.KnownFields(true)
	var doc File
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	if doc.Child.Workdir != "" {
		doc.Child.Workdir = resolvePath(baseDir, doc.Child.Workdir)
	}

	if doc.Child.EnvFromFile != "" {
		envPath := resolvePath(baseDir, doc.Child.EnvFromFile)
		doc.Child.EnvFromFile = envPath
		fileEnv, err := loadEnvFile(envPath)
		if err != nil {
			return nil, fmt.Errorf("%s: child.envFromFile: %w", absPath, err)
		}
		// Inline env wins over the file.
		for k, v := range doc.Child.Env {
			fileEnv[k] = v
		}
		doc.Child.Env = fileEnv
	}

	if err := doc.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

func resolvePath(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		sep := strings.IndexRune(line, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		switch {
		case strings.HasPrefix(value, `"`):
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		case strings.HasPrefix(value, "'"):
			if len(value) < 2 || value[len(value)-1] != '\'' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			value = value[1 : len(value)-1]
		default:
			if comment := strings.IndexRune(value, '#'); comment >= 0 {
				value = strings.TrimSpace(value[:comment])
			}
		}
		values[key] = expandEnvWithDefault(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}

func expandYAMLValues(doc map[string]any) {
	for key, value := range doc {
		doc[key] = expandValueRecursive(value)
	}
}

func expandValueRecursive(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		expandYAMLValues(typed)
		return typed
	case []any:
		for i, elem := range typed {
			typed[i] = expandValueRecursive(elem)
		}
		return typed
	case string:
		return expandEnvWithDefault(typed)
	default:
		return value
	}
}

// coerceInteger turns a substituted string such as "${TIMEOUT}" back into a
// number so that schema validation sees the intended type.
func coerceInteger(doc map[string]any, key string) {
	s, ok := doc[key].(string)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		doc[key] = n
	}
}

// expandEnvWithDefault expands $VAR and ${VAR} references, honouring the
// ${VAR:-fallback} form for unset or empty variables.
func expandEnvWithDefault(s string) string {
	return os.Expand(s, func(name string) string {
		if key, fallback, ok := strings.Cut(name, ":-"); ok {
			if v, set := os.LookupEnv(key); set && v != "" {
				return v
			}
			return fallback
		}
		return os.Getenv(name)
	})
}
