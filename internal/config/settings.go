package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultConfigPath is used when $CONFIG_PATH is unset.
const DefaultConfigPath = "config.json"

// Settings is a process-wide, read-only configuration object constructed at
// startup. Resolution precedence, highest first: environment variable; JSON
// configuration file; built-in default. Results are cached for the process
// lifetime — there is no hot reload in the core.
type Settings struct {
	raw string // the file tree, after env-var interpolation, as compact JSON
}

// Load reads .env files, locates the JSON configuration file (via
// $CONFIG_PATH or DefaultConfigPath), expands environment variable
// references inside it, and returns a resolver over the result. A missing
// file is not an error: Settings falls back to built-in defaults for every
// key.
func Load() (*Settings, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultConfigPath
	}

	raw := "{}"
	if data, err := os.ReadFile(path); err == nil {
		var tree any
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, err
		}
		expanded := expandInData(tree)
		out, err := json.Marshal(expanded)
		if err != nil {
			return nil, err
		}
		raw = string(out)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return &Settings{raw: raw}, nil
}

// NewFromJSON builds Settings directly from an already-decoded JSON
// document, bypassing file/env-file loading. Used by tests.
func NewFromJSON(raw string) *Settings {
	return &Settings{raw: raw}
}

// envKey uppercases and underscore-joins a dotted path: "llm_providers.openai.api_key"
// becomes "LLM_PROVIDERS_OPENAI_API_KEY".
func envKey(path string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "[", "_", "]", "").Replace(path))
}

// lookup returns the raw string value for path from, in precedence order,
// the environment then the file tree, and whether it was found at all.
func (s *Settings) lookup(path string) (string, bool) {
	if v, ok := os.LookupEnv(envKey(path)); ok {
		return v, true
	}
	result := gjson.Get(s.raw, path)
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

// String returns the string value at path, or def if absent.
func (s *Settings) String(path, def string) string {
	v, ok := s.lookup(path)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

// Bool returns the boolean value at path ("true"/"false"/"1"/"0", case
// insensitive), or def if absent or unparseable.
func (s *Settings) Bool(path string, def bool) bool {
	v, ok := s.lookup(path)
	if !ok {
		return def
	}
	b, ok := parseBool(v)
	if !ok {
		return def
	}
	return b
}

// Int returns the integer value at path, or def if absent or unparseable.
func (s *Settings) Int(path string, def int) int {
	v, ok := s.lookup(path)
	if !ok {
		return def
	}
	if _, fromEnv := os.LookupEnv(envKey(path)); !fromEnv {
		if result := gjson.Get(s.raw, path); result.Type == gjson.Number {
			return int(result.Int())
		}
	}
	if n, err := json.Number(strings.TrimSpace(v)).Int64(); err == nil {
		return int(n)
	}
	return def
}

// Float returns the float value at path, or def if absent or unparseable.
func (s *Settings) Float(path string, def float64) float64 {
	v, ok := s.lookup(path)
	if !ok {
		return def
	}
	if _, fromEnv := os.LookupEnv(envKey(path)); !fromEnv {
		if result := gjson.Get(s.raw, path); result.Type == gjson.Number {
			return result.Float()
		}
	}
	if n, err := json.Number(strings.TrimSpace(v)).Float64(); err == nil {
		return n
	}
	return def
}

// StringSlice returns a []string at path (from a JSON array in the file), or
// def if absent. There is no environment-variable form for array values.
func (s *Settings) StringSlice(path string, def []string) []string {
	result := gjson.Get(s.raw, path)
	if !result.IsArray() {
		return def
	}
	var out []string
	for _, item := range result.Array() {
		out = append(out, item.String())
	}
	return out
}

// Raw returns the element at path as a gjson.Result, for callers decoding a
// whole sub-tree (e.g. the llm_providers block) into a typed struct.
func (s *Settings) Raw(path string) gjson.Result {
	return gjson.Get(s.raw, path)
}

// DecodeInto unmarshals the sub-tree at path into v via encoding/json. Used
// once per subsystem at startup. It reads the file tree only: environment
// variables do not override values decoded this way.
func (s *Settings) DecodeInto(path string, v any) error {
	result := s.Raw(path)
	if !result.Exists() {
		return nil
	}
	return json.Unmarshal([]byte(result.Raw), v)
}

// WithOverride returns a copy of Settings with path set to value in the file
// tree (env-var precedence is unaffected). Used by tests to seed config
// without writing a file.
func (s *Settings) WithOverride(path string, value any) *Settings {
	out, err := sjson.Set(s.raw, path, value)
	if err != nil {
		return s
	}
	return &Settings{raw: out}
}
