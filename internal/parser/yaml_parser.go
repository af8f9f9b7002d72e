package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/wangchj/inflight-sub000/internal/converter"
	"github.com/wangchj/inflight-sub000/internal/types"
)

// Supported request file formats
const (
	FormatHTTP  = "http"
	FormatYAML  = "yaml"
	FormatJSON  = "json"
	FormatJSONC = "jsonc"
	FormatHAR   = "har"
)

// ParseYAMLFile parses a YAML, JSON or JSONC file containing requests
func ParseYAMLFile(filePath string) ([]types.Request, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		return parseJSON(data)
	case ".jsonc":
		return parseJSON(jsonc.ToJSON(data))
	default:
		return parseYAML(data)
	}
}

// parseJSON accepts an array of requests or a single request
func parseJSON(data []byte) ([]types.Request, error) {
	var requests []types.Request
	if err := json.Unmarshal(data, &requests); err == nil {
		return requests, nil
	}

	var request types.Request
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return []types.Request{request}, nil
}

// parseYAML accepts a sequence of requests or a single request
func parseYAML(data []byte) ([]types.Request, error) {
	var requests []types.Request
	if err := yaml.Unmarshal(data, &requests); err == nil {
		// Validate that we actually got an array
		if len(requests) > 0 || strings.TrimSpace(string(data)) == "[]" {
			return requests, nil
		}
	}

	var request types.Request
	if err := yaml.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return []types.Request{request}, nil
}

// DetectFormat detects the request file format from its extension, peeking
// at .http files that actually hold structured data
func DetectFormat(filePath string) (string, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonc":
		return FormatJSONC, nil
	case ".har":
		return FormatHAR, nil
	case ".http":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", err
		}

		content := strings.TrimSpace(string(data))
		if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[") {
			return FormatJSON, nil
		}
		if strings.HasPrefix(content, "---") {
			return FormatYAML, nil
		}
		return FormatHTTP, nil
	default:
		return FormatHTTP, nil
	}
}

// Imported is the result of reading a request file
type Imported struct {
	Requests []types.Request
	// Vars are values lifted out of the requests (e.g. bearer tokens
	// replaced by {{token}})
	Vars []types.Var
}

// Parse is the main entry point for parsing any supported file format
func Parse(filePath string) (*Imported, error) {
	format, err := DetectFormat(filePath)
	if err != nil {
		return nil, err
	}

	var requests []types.Request
	switch format {
	case FormatHAR:
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		result, err := converter.HARToRequests(data, converter.HAROptions{})
		if err != nil {
			return nil, err
		}
		return &Imported{Requests: result.Requests, Vars: result.Vars}, nil
	case FormatYAML, FormatJSON, FormatJSONC:
		// .http files holding JSON fall through to the YAML decoder
		requests, err = ParseYAMLFile(filePath)
	case FormatHTTP:
		requests, err = ParseHTTPFile(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	for i, req := range requests {
		if req.Method == "" {
			requests[i].Method = "GET"
		}
		if req.URL == "" {
			return nil, fmt.Errorf("request %d (%q) has no URL", i+1, req.Name)
		}
		requests[i].Method = strings.ToUpper(requests[i].Method)
		if requests[i].Name == "" {
			requests[i].Name = requests[i].Method + " " + requests[i].URL
		}
	}

	return &Imported{Requests: requests}, nil
}
