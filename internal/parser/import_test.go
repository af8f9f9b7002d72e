package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wangchj/inflight-sub000/internal/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseHTTP(t *testing.T) {
	input := `### List items
# @auth.type aws_sigv4
# @auth.region {{region}}
# @auth.service execute-api
# @auth.profile dev
GET https://{{host}}/items?limit=10
Accept: application/json
X-Trace: {{trace}}

### Create item
# @tls.insecureSkipVerify true
post https://{{host}}/items
Content-Type: application/json

{
  "name": "{{name}}",
  "tags": ["a"]
}

### Inline creds
# @auth.type aws_sigv4
# @auth.region us-east-1
# @auth.service s3
# @auth.accessKeyId {{ak}}
# @auth.secretAccessKey {{sk}}
DELETE https://bucket.s3.amazonaws.com/key
`
	requests, err := ParseHTTP(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseHTTP() error = %v", err)
	}
	if len(requests) != 3 {
		t.Fatalf("got %d requests, want 3", len(requests))
	}

	list := requests[0]
	if list.Name != "List items" || list.Method != "GET" || list.URL != "https://{{host}}/items?limit=10" {
		t.Errorf("list = %+v", list)
	}
	if list.Headers["Accept"] != "application/json" || list.Headers["X-Trace"] != "{{trace}}" {
		t.Errorf("headers = %v", list.Headers)
	}
	sig, ok := list.Auth.Scheme.(types.AWSSigV4)
	if !ok {
		t.Fatalf("auth = %T, want AWSSigV4", list.Auth.Scheme)
	}
	if sig.Region != "{{region}}" || sig.Service != "execute-api" {
		t.Errorf("sigv4 = %+v", sig)
	}
	if sig.Credentials != (types.AWSProfileCredentials{Profile: "dev"}) {
		t.Errorf("credentials = %+v", sig.Credentials)
	}

	create := requests[1]
	if create.Method != "POST" {
		t.Errorf("method = %q, want POST", create.Method)
	}
	wantBody := "{\n  \"name\": \"{{name}}\",\n  \"tags\": [\"a\"]\n}"
	if create.Body != wantBody {
		t.Errorf("body = %q, want %q", create.Body, wantBody)
	}
	if create.TLS == nil || !create.TLS.InsecureSkipVerify {
		t.Errorf("tls = %+v", create.TLS)
	}
	if create.Auth.Type() != types.AuthNone {
		t.Errorf("auth = %v, want none", create.Auth.Type())
	}

	inline, ok := requests[2].Auth.Scheme.(types.AWSSigV4)
	if !ok {
		t.Fatalf("auth = %T", requests[2].Auth.Scheme)
	}
	creds, ok := inline.Credentials.(types.AWSInlineCredentials)
	if !ok || creds.AccessKeyID != "{{ak}}" || creds.SecretAccessKey != "{{sk}}" {
		t.Errorf("inline credentials = %+v", inline.Credentials)
	}
}

func TestParseHTTP_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown auth", "### a\n# @auth.type oauth2\nGET http://x\n"},
		{"sigv4 without credentials", "### a\n# @auth.type aws_sigv4\n# @auth.region r\nGET http://x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseHTTP(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseHTTP_NoSeparator(t *testing.T) {
	requests, err := ParseHTTP(strings.NewReader("GET http://example.com/health\n"))
	if err != nil {
		t.Fatalf("ParseHTTP() error = %v", err)
	}
	if len(requests) != 1 || requests[0].URL != "http://example.com/health" {
		t.Errorf("requests = %+v", requests)
	}
}

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantLen  int
		wantAuth types.AuthType
	}{
		{
			name:    "yaml list",
			file:    "reqs.yaml",
			content: "- name: a\n  method: get\n  url: http://x/a\n- name: b\n  method: POST\n  url: http://x/b\n  body: '{}'\n",
			wantLen: 2,
		},
		{
			name:     "yaml single with auth",
			file:     "req.yml",
			content:  "name: a\nmethod: GET\nurl: http://x\nauth:\n  type: aws_sigv4\n  source: aws_cli_profile\n  region: us-east-1\n  service: execute-api\n  profile: dev\n",
			wantLen:  1,
			wantAuth: types.AuthAWSSigV4,
		},
		{
			name:    "json array",
			file:    "reqs.json",
			content: `[{"name":"a","method":"GET","url":"http://x"}]`,
			wantLen: 1,
		},
		{
			name: "jsonc with comments",
			file: "req.jsonc",
			content: `{
  // health check
  "name": "health",
  "method": "GET",
  "url": "http://x/health", /* trailing comma below */
}`,
			wantLen: 1,
		},
		{
			name:    "http",
			file:    "reqs.http",
			content: "### a\nGET http://x\n",
			wantLen: 1,
		},
		{
			name:    "http holding json",
			file:    "reqs.http",
			content: `{"method":"PUT","url":"http://x"}`,
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imported, err := Parse(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(imported.Requests) != tt.wantLen {
				t.Fatalf("got %d requests, want %d", len(imported.Requests), tt.wantLen)
			}
			for _, req := range imported.Requests {
				if req.Method != strings.ToUpper(req.Method) || req.Name == "" {
					t.Errorf("request not normalized: %+v", req)
				}
			}
			if tt.wantAuth != "" && imported.Requests[0].Auth.Type() != tt.wantAuth {
				t.Errorf("auth = %v, want %v", imported.Requests[0].Auth.Type(), tt.wantAuth)
			}
		})
	}
}

func TestParse_HAR(t *testing.T) {
	har := `{"log":{"entries":[{"request":{"method":"GET","url":"https://x/a","headers":[{"name":"Authorization","value":"Bearer t0k"}]}}]}}`
	imported, err := Parse(writeFile(t, "capture.har", har))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(imported.Requests) != 1 || len(imported.Vars) != 1 {
		t.Fatalf("imported = %+v", imported)
	}
}

func TestParse_MissingURL(t *testing.T) {
	_, err := Parse(writeFile(t, "bad.json", `{"name":"nourl"}`))
	if err == nil || !strings.Contains(err.Error(), "no URL") {
		t.Errorf("Parse() error = %v, want missing URL", err)
	}
}
