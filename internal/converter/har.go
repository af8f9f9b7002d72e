package converter

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/wangchj/inflight-sub000/internal/types"
)

// HAROptions controls HAR import
type HAROptions struct {
	ImportHeaders bool   // If true, keep sensitive headers
	Filter        string // Keep only entries whose URL contains this (optional)
}

// HARFile represents the HAR file structure
type HARFile struct {
	Log HARLog `json:"log"`
}

// HARLog represents the log section of HAR
type HARLog struct {
	Version string     `json:"version"`
	Creator HARCreator `json:"creator"`
	Entries []HAREntry `json:"entries"`
}

// HARCreator represents the tool that created the HAR
type HARCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HAREntry represents a single HTTP request/response
type HAREntry struct {
	Request HARRequest `json:"request"`
}

// HARRequest represents the request part of an entry
type HARRequest struct {
	Method      string       `json:"method"`
	URL         string       `json:"url"`
	HTTPVersion string       `json:"httpVersion"`
	Headers     []HARHeader  `json:"headers"`
	PostData    *HARPostData `json:"postData,omitempty"`
}

// HARHeader represents a single header
type HARHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARPostData represents POST data
type HARPostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// HARResult holds the converted requests and the values lifted out of them
type HARResult struct {
	Requests []types.Request
	Vars     []types.Var
}

// Headers dropped unless HAROptions.ImportHeaders is set
var sensitiveHeaders = []string{"cookie", "authorization", "x-auth-token", "x-api-key"}

// Headers recomputed by the transport or the signer
var transportHeaders = []string{"host", "content-length", "connection", "accept-encoding"}

// HARToRequests converts the entries of a HAR document into request
// templates. A bearer token is replaced by {{token}} and returned as a var,
// so it lands in a variant instead of every request.
func HARToRequests(data []byte, opts HAROptions) (*HARResult, error) {
	var har HARFile
	if err := json.Unmarshal(data, &har); err != nil {
		return nil, fmt.Errorf("failed to parse HAR file: %w", err)
	}

	result := &HARResult{}
	token := ""

	for i, entry := range har.Log.Entries {
		req := entry.Request
		if opts.Filter != "" && !strings.Contains(req.URL, opts.Filter) {
			continue
		}

		headers := make(map[string]string)
		for _, h := range req.Headers {
			// Skip HTTP/2 pseudo-headers
			if strings.HasPrefix(h.Name, ":") {
				continue
			}
			lower := strings.ToLower(h.Name)
			if contains(transportHeaders, lower) {
				continue
			}

			if lower == "authorization" && strings.HasPrefix(h.Value, "Bearer ") {
				if token == "" {
					token = strings.TrimPrefix(h.Value, "Bearer ")
				}
				headers[h.Name] = "Bearer {{token}}"
				continue
			}
			if !opts.ImportHeaders && contains(sensitiveHeaders, lower) {
				continue
			}
			headers[h.Name] = h.Value
		}

		body := ""
		if req.PostData != nil {
			body = req.PostData.Text
		}

		result.Requests = append(result.Requests, types.Request{
			Name:    requestName(req.Method, req.URL, i),
			Method:  strings.ToUpper(req.Method),
			URL:     req.URL,
			Headers: headers,
			Body:    body,
			Auth:    types.Auth{Scheme: types.NoAuth{}},
		})
	}

	if token != "" {
		result.Vars = append(result.Vars, types.Var{Name: "token", Value: token})
	}

	return result, nil
}

// requestName builds "METHOD /path" from the URL
func requestName(method, rawURL string, index int) string {
	path := "/"
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	if method == "" {
		return fmt.Sprintf("request-%d %s", index+1, path)
	}
	return strings.ToUpper(method) + " " + path
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
