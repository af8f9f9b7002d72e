package parser

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/wangchj/inflight-sub000/internal/types"
)

// Variable placeholder pattern: {{varName}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Lookup is the read side of the variable store
type Lookup interface {
	Lookup(name string) (string, bool)
}

// UnresolvedVariableError is returned when a placeholder names a variable
// that is not bound
type UnresolvedVariableError struct {
	Name string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("unresolved variable: %s", e.Name)
}

// CyclicVariableError is returned when a variable references itself,
// directly or through other variables. Chain ends with the repeated name.
type CyclicVariableError struct {
	Chain []string
}

func (e *CyclicVariableError) Error() string {
	return fmt.Sprintf("cyclic variable reference: %s", strings.Join(e.Chain, " -> "))
}

// VariableResolver replaces {{name}} placeholders using a variable lookup.
// Substituted values are resolved again before they are inserted.
type VariableResolver struct {
	vars Lookup
}

// NewVariableResolver creates a new variable resolver
func NewVariableResolver(vars Lookup) *VariableResolver {
	return &VariableResolver{vars: vars}
}

// Resolve replaces every placeholder in input. The first unbound or cyclic
// variable aborts resolution; no partial result is returned.
func (vr *VariableResolver) Resolve(input string) (string, error) {
	return vr.resolve(input, nil)
}

func (vr *VariableResolver) resolve(input string, chain []string) (string, error) {
	matches := varPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		name := input[m[2]:m[3]]

		if slices.Contains(chain, name) {
			cycle := append(slices.Clone(chain), name)
			return "", &CyclicVariableError{Chain: cycle}
		}

		value, ok := vr.vars.Lookup(name)
		if !ok {
			return "", &UnresolvedVariableError{Name: name}
		}

		resolved, err := vr.resolve(value, append(chain, name))
		if err != nil {
			return "", err
		}

		b.WriteString(input[last:m[0]])
		b.WriteString(resolved)
		last = m[1]
	}
	b.WriteString(input[last:])

	return b.String(), nil
}

// ResolveValue resolves every string inside a JSON-like value. Maps keep all
// keys and slices keep their order; other scalars are returned unchanged.
// The input is not modified.
func (vr *VariableResolver) ResolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return vr.Resolve(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := vr.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := vr.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolveRequest resolves all variables in a request (URL, headers, body,
// auth). The returned request is a copy.
func (vr *VariableResolver) ResolveRequest(req *types.Request) (*types.Request, error) {
	resolved := req.Clone()

	url, err := vr.Resolve(req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve URL: %w", err)
	}
	resolved.URL = url

	for key, value := range req.Headers {
		resolvedValue, err := vr.Resolve(value)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve header %s: %w", key, err)
		}
		resolved.Headers[key] = resolvedValue
	}

	if req.Body != "" {
		body, err := vr.Resolve(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve body: %w", err)
		}
		resolved.Body = body
	}

	auth, err := req.Auth.MapStrings(vr.Resolve)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve auth %s: %w", req.Auth.Type(), err)
	}
	resolved.Auth = auth

	return resolved, nil
}

// ExtractVariableNames extracts all unique variable names from a string
// Returns variable names without the {{ }} brackets
func ExtractVariableNames(input string) []string {
	matches := varPattern.FindAllStringSubmatch(input, -1)
	seen := make(map[string]bool)
	var names []string
	for _, match := range matches {
		if len(match) > 1 {
			name := match[1]
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// ExtractRequestVariables extracts all unique variable names from a request
// Includes variables from URL, headers, body and auth
func ExtractRequestVariables(req *types.Request) []string {
	seen := make(map[string]bool)
	var names []string

	addNames := func(vars []string) {
		for _, name := range vars {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	addNames(ExtractVariableNames(req.URL))

	headerKeys := make([]string, 0, len(req.Headers))
	for k := range req.Headers {
		headerKeys = append(headerKeys, k)
	}
	slices.Sort(headerKeys)
	for _, k := range headerKeys {
		addNames(ExtractVariableNames(req.Headers[k]))
	}

	addNames(ExtractVariableNames(req.Body))

	// MapStrings with a collecting callback never fails for known schemes
	_, _ = req.Auth.MapStrings(func(s string) (string, error) {
		addNames(ExtractVariableNames(s))
		return s, nil
	})

	return names
}

// MissingVariables returns the referenced names that vars cannot resolve,
// including names only reachable through other variables
func MissingVariables(req *types.Request, vars Lookup) []string {
	var missing []string
	seen := make(map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		value, ok := vars.Lookup(name)
		if !ok {
			missing = append(missing, name)
			return
		}
		for _, ref := range ExtractVariableNames(value) {
			visit(ref)
		}
	}

	for _, name := range ExtractRequestVariables(req) {
		visit(name)
	}
	return missing
}

// LoadEnvFile loads variable overrides from a .env style file
func LoadEnvFile(path string) (map[string]string, error) {
	envVars := make(map[string]string)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue // Skip malformed lines
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		envVars[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading env file: %w", err)
	}

	return envVars, nil
}
