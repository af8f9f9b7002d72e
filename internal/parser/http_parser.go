package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/wangchj/inflight-sub000/internal/types"
)

var validMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// ParseHTTPFile parses a traditional .http file with ### separators
func ParseHTTPFile(filePath string) ([]types.Request, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseHTTP(file)
}

// httpBlock accumulates one request while scanning
type httpBlock struct {
	req       types.Request
	auth      map[string]string
	bodyLines []string
	inBody    bool
}

func newHTTPBlock(name string) *httpBlock {
	return &httpBlock{
		req: types.Request{
			Name:    name,
			Headers: make(map[string]string),
		},
		auth: make(map[string]string),
	}
}

func (b *httpBlock) finish() (types.Request, error) {
	if b.inBody && len(b.bodyLines) > 0 {
		b.req.Body = strings.TrimRight(strings.Join(b.bodyLines, "\n"), "\n")
	}
	auth, err := authFromAnnotations(b.auth)
	if err != nil {
		return types.Request{}, fmt.Errorf("request %q: %w", b.req.Name, err)
	}
	b.req.Auth = auth
	return b.req, nil
}

// ParseHTTP reads requests in .http format.
//
//	### List items
//	# @auth.type aws_sigv4
//	# @auth.region {{region}}
//	# @auth.service execute-api
//	# @auth.profile dev
//	GET https://{{host}}/items
//	Accept: application/json
//
//	{"optional": "body"}
func ParseHTTP(r io.Reader) ([]types.Request, error) {
	var requests []types.Request
	var current *httpBlock

	flush := func() error {
		if current == nil || current.req.Method == "" {
			return nil
		}
		req, err := current.finish()
		if err != nil {
			return err
		}
		requests = append(requests, req)
		return nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		// New request separator
		if strings.HasPrefix(line, "###") {
			if err := flush(); err != nil {
				return nil, err
			}
			current = newHTTPBlock(strings.TrimSpace(strings.TrimPrefix(line, "###")))
			continue
		}

		// A file may start without a separator
		if current == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			current = newHTTPBlock("")
		}

		if strings.HasPrefix(line, "#") && !current.inBody {
			parseAnnotation(current, strings.TrimSpace(strings.TrimPrefix(line, "#")))
			continue
		}

		// Request line (e.g., GET http://example.com)
		if current.req.Method == "" {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				method := strings.ToUpper(parts[0])
				if slices.Contains(validMethods, method) {
					current.req.Method = method
					current.req.URL = parts[1]
				}
			}
			continue
		}

		// Empty line after headers starts body
		if strings.TrimSpace(line) == "" && !current.inBody {
			current.inBody = true
			continue
		}

		if !current.inBody && strings.Contains(line, ":") {
			// Indented lines are body content, not headers
			if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
				current.inBody = true
				current.bodyLines = append(current.bodyLines, line)
				continue
			}

			key, value, _ := strings.Cut(line, ":")
			key = strings.TrimSpace(key)
			if key == "" || strings.ContainsAny(key, " \t{[\"'") {
				current.inBody = true
				current.bodyLines = append(current.bodyLines, line)
				continue
			}

			current.req.Headers[key] = strings.TrimSpace(value)
			continue
		}

		if current.inBody {
			current.bodyLines = append(current.bodyLines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return requests, nil
}

func parseAnnotation(b *httpBlock, trimmed string) {
	if !strings.HasPrefix(trimmed, "@") {
		return
	}
	key, value, _ := strings.Cut(trimmed[1:], " ")
	value = strings.TrimSpace(value)

	switch {
	case key == "name":
		b.req.Name = value
	case strings.HasPrefix(key, "auth."):
		b.auth[strings.TrimPrefix(key, "auth.")] = value
	case strings.HasPrefix(key, "tls."):
		if b.req.TLS == nil {
			b.req.TLS = &types.TLSConfig{}
		}
		switch strings.TrimPrefix(key, "tls.") {
		case "certFile":
			b.req.TLS.CertFile = value
		case "keyFile":
			b.req.TLS.KeyFile = value
		case "caFile":
			b.req.TLS.CAFile = value
		case "insecureSkipVerify":
			b.req.TLS.InsecureSkipVerify = value == "true"
		}
	}
}

// authFromAnnotations builds the auth descriptor from @auth.* annotations
func authFromAnnotations(fields map[string]string) (types.Auth, error) {
	switch types.AuthType(fields["type"]) {
	case "", types.AuthNone:
		return types.Auth{Scheme: types.NoAuth{}}, nil
	case types.AuthAWSSigV4:
		scheme := types.AWSSigV4{
			Region:  fields["region"],
			Service: fields["service"],
		}
		switch {
		case fields["profile"] != "":
			scheme.Credentials = types.AWSProfileCredentials{Profile: fields["profile"]}
		case fields["accessKeyId"] != "":
			scheme.Credentials = types.AWSInlineCredentials{
				AccessKeyID:     fields["accessKeyId"],
				SecretAccessKey: fields["secretAccessKey"],
				SessionToken:    fields["sessionToken"],
			}
		default:
			return types.Auth{}, fmt.Errorf("aws_sigv4 needs @auth.profile or @auth.accessKeyId")
		}
		return types.Auth{Scheme: scheme}, nil
	default:
		return types.Auth{}, fmt.Errorf("unknown auth type %q", fields["type"])
	}
}
