package mcp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// toolNamePattern is the meta-schema constraint on bare tool names (C9).
var toolNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Tool is a normalised capability exposed by an MCP server, keyed by its
// qualified name ("server.tool").
type Tool struct {
	QualifiedName string
	ServerName    string
	Name          string
	Description   string
	Parameters    map[string]any // JSON-Schema object
	Category      string
	Tags          []string

	schema *jsonschema.Schema
}

// Registry holds normalised tool descriptors (C9). On name collision across
// servers, the first-registered server wins, per the qualified-name
// uniqueness note in SPEC_FULL.md §3.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register validates and stores the tools discovered from one server.
// Tools whose qualified name is already registered are skipped silently,
// giving deployment-controlled precedence to whichever server registered
// first.
func (r *Registry) Register(serverName string, tools []Tool) ([]string, error) {
	var skipped []string

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range tools {
		t := tools[i]
		if err := validateToolMeta(t); err != nil {
			return nil, err
		}
		t.ServerName = serverName
		t.QualifiedName = serverName + "." + t.Name

		if _, exists := r.tools[t.QualifiedName]; exists {
			skipped = append(skipped, t.QualifiedName)
			continue
		}

		schema, err := compileSchema(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", t.QualifiedName, err)
		}
		t.schema = schema

		r.tools[t.QualifiedName] = &t
		r.order = append(r.order, t.QualifiedName)
	}
	return skipped, nil
}

func validateToolMeta(t Tool) error {
	if !toolNamePattern.MatchString(t.Name) {
		return gatewayerr.NewValidation("tool name %q must match [A-Za-z_][A-Za-z0-9_]*", t.Name)
	}
	if len(t.Description) < 10 || len(t.Description) > 500 {
		return gatewayerr.NewValidation("tool %q description must be 10-500 characters", t.Name)
	}
	if t.Parameters == nil {
		return gatewayerr.NewValidation("tool %q parameters must be a JSON-Schema object", t.Name)
	}
	return nil
}

func compileSchema(parameters map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "tool-parameters.json"
	if err := compiler.AddResource(resourceName, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

// Get returns a tool by its qualified name.
func (r *Registry) Get(qualifiedName string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[qualifiedName]
	return t, ok
}

// List returns every registered tool, in registration order.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ValidateArguments validates a call's arguments against the tool's schema,
// returning human-readable error strings.
func (r *Registry) ValidateArguments(qualifiedName string, args map[string]any) ([]string, error) {
	t, ok := r.Get(qualifiedName)
	if !ok {
		return nil, gatewayerr.NewToolNotFound(qualifiedName)
	}
	if t.schema == nil {
		return nil, nil
	}
	if err := t.schema.Validate(toInterfaceMap(args)); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			var msgs []string
			for _, cause := range verr.Causes {
				msgs = append(msgs, cause.Error())
			}
			if len(msgs) == 0 {
				msgs = []string{verr.Error()}
			}
			return msgs, nil
		}
		return []string{err.Error()}, nil
	}
	return nil, nil
}

func toInterfaceMap(m map[string]any) any {
	// jsonschema validates against plain any values produced by
	// encoding/json; round-tripping keeps numeric types consistent
	// (float64) regardless of how callers built the map.
	raw, _ := json.Marshal(m)
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

// FormatForProvider renders a tool in one of the wire shapes a given LLM
// provider expects (C9).
func FormatForProvider(t *Tool, provider string) map[string]any {
	switch provider {
	case "openai-style", "ollama-style":
		fn := map[string]any{
			"name":        t.QualifiedName,
			"description": t.Description,
			"parameters":  t.Parameters,
		}
		if provider == "ollama-style" {
			fn["parameters"] = flattenNestedObjects(t.Parameters)
		}
		return map[string]any{"type": "function", "function": fn}

	case "anthropic-style":
		return map[string]any{
			"name":        strings.ReplaceAll(t.QualifiedName, ".", "_"),
			"description": t.Description,
			"input_schema": t.Parameters,
		}

	default: // "generic"
		return map[string]any{
			"name":        t.QualifiedName,
			"description": t.Description,
			"parameters":  t.Parameters,
		}
	}
}

// flattenNestedObjects JSON-encodes any nested-object property into a
// string field, because Ollama's tool-call grammar has limited support for
// deeply nested parameter schemas.
func flattenNestedObjects(parameters map[string]any) map[string]any {
	props, ok := parameters["properties"].(map[string]any)
	if !ok {
		return parameters
	}

	flattened := make(map[string]any, len(parameters))
	for k, v := range parameters {
		flattened[k] = v
	}
	newProps := make(map[string]any, len(props))
	for name, prop := range props {
		propMap, ok := prop.(map[string]any)
		if ok && propMap["type"] == "object" {
			encoded, _ := json.Marshal(propMap)
			newProps[name] = map[string]any{
				"type":        "string",
				"description": fmt.Sprintf("JSON-encoded object: %s", string(encoded)),
			}
			continue
		}
		newProps[name] = prop
	}
	flattened["properties"] = newProps
	return flattened
}
