package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/wangchj/inflight-sub000/internal/clock"
)

const (
	algorithm       = "AWS4-HMAC-SHA256"
	scopeTerminator = "aws4_request"
	timeFormat      = "20060102T150405Z"
	dateFormat      = "20060102"
)

// Header names written by the signer
const (
	HeaderAuthorization = "Authorization"
	HeaderDate          = "X-Amz-Date"
	HeaderHost          = "Host"
	HeaderSecurityToken = "X-Amz-Security-Token"
)

// Headers that never take part in the signature. Host is re-derived from
// the URL and the signer's own headers are replaced.
var unsignableHeaders = map[string]bool{
	"authorization":     true,
	"user-agent":        true,
	"connection":        true,
	"expect":            true,
	"x-amzn-trace-id":   true,
	"presigned-expires": true,
	"range":             true,
}

var replacedHeaders = map[string]bool{
	"authorization":        true,
	"x-amz-date":           true,
	"x-amz-security-token": true,
	"host":                 true,
}

// Input is the resolved request to sign. A nil and an empty Body produce the
// same payload hash.
type Input struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Config selects the credential scope
type Config struct {
	Region  string
	Service string
}

// Credentials are the key material used to derive the signing key
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Result holds the signature and the headers to add to the request
type Result struct {
	Headers          map[string]string
	Signature        string
	SignedHeaders    string
	CanonicalRequest string
	StringToSign     string
	Timestamp        string
}

// ApplyHeaders returns a copy of headers with any previous signing headers
// removed (case-insensitively) and the new ones set
func (r *Result) ApplyHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+len(r.Headers))
	for k, v := range headers {
		if replacedHeaders[strings.ToLower(k)] {
			continue
		}
		out[k] = v
	}
	for k, v := range r.Headers {
		out[k] = v
	}
	return out
}

// Signer computes AWS Signature Version 4 header signatures
type Signer struct {
	clock clock.Clock
}

// NewSigner creates a signer that timestamps requests with c
func NewSigner(c clock.Clock) *Signer {
	if c == nil {
		c = clock.SystemUTC{}
	}
	return &Signer{clock: c}
}

// Sign signs in at the current time
func (s *Signer) Sign(in Input, cfg Config, creds Credentials) (*Result, error) {
	return s.SignAt(in, cfg, creds, s.clock.NowUTC())
}

// SignAt signs in as of t. The same inputs and time always produce the same
// signature.
func (s *Signer) SignAt(in Input, cfg Config, creds Credentials, t time.Time) (*Result, error) {
	switch {
	case cfg.Region == "":
		return nil, missing("region")
	case cfg.Service == "":
		return nil, missing("service")
	case creds.AccessKeyID == "":
		return nil, missing("access key id")
	case creds.SecretAccessKey == "":
		return nil, missing("secret access key")
	}

	u, err := url.Parse(in.URL)
	if err != nil {
		return nil, &SigningError{Reason: "invalid URL", Err: err}
	}
	if u.Host == "" {
		return nil, missing("host")
	}

	t = t.UTC()
	amzDate := t.Format(timeFormat)
	date := t.Format(dateFormat)
	host := hostHeader(u)

	headers := map[string]string{
		"host":       host,
		"x-amz-date": amzDate,
	}
	if creds.SessionToken != "" {
		headers["x-amz-security-token"] = creds.SessionToken
	}
	for _, name := range sortedKeys(in.Headers) {
		lower := strings.ToLower(name)
		if unsignableHeaders[lower] || replacedHeaders[lower] {
			continue
		}
		headers[lower] = canonicalHeaderValue(in.Headers[name])
	}

	names := sortedKeys(headers)
	var canonicalHeaders strings.Builder
	for _, name := range names {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteByte(':')
		canonicalHeaders.WriteString(headers[name])
		canonicalHeaders.WriteByte('\n')
	}
	signedHeaders := strings.Join(names, ";")

	canonicalRequest := strings.Join([]string{
		strings.ToUpper(in.Method),
		canonicalURI(u, cfg.Service),
		canonicalQuery(u.RawQuery),
		canonicalHeaders.String(),
		signedHeaders,
		hashHex(in.Body),
	}, "\n")

	scope := strings.Join([]string{date, cfg.Region, cfg.Service, scopeTerminator}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	key := SigningKey(creds.SecretAccessKey, date, cfg.Region, cfg.Service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	authorization := fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, creds.AccessKeyID, scope, signedHeaders, signature)

	out := map[string]string{
		HeaderAuthorization: authorization,
		HeaderDate:          amzDate,
		HeaderHost:          host,
	}
	if creds.SessionToken != "" {
		out[HeaderSecurityToken] = creds.SessionToken
	}

	return &Result{
		Headers:          out,
		Signature:        signature,
		SignedHeaders:    signedHeaders,
		CanonicalRequest: canonicalRequest,
		StringToSign:     stringToSign,
		Timestamp:        amzDate,
	}, nil
}

// SigningKey derives the HMAC chain AWS4+secret → date → region → service → aws4_request
func SigningKey(secret, date, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	k = hmacSHA256(k, []byte(region))
	k = hmacSHA256(k, []byte(service))
	return hmacSHA256(k, []byte(scopeTerminator))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hostHeader returns the URL host without the scheme's default port
func hostHeader(u *url.URL) string {
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		return u.Hostname()
	}
	return u.Host
}

// canonicalHeaderValue trims the value and collapses inner whitespace runs
func canonicalHeaderValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// canonicalURI encodes the escaped request path. Services other than s3 get
// a normalized path with every segment encoded a second time.
func canonicalURI(u *url.URL, service string) string {
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	if service == "s3" {
		return path
	}

	var segments []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, uriEncode(seg))
		}
	}

	var b strings.Builder
	if strings.HasPrefix(path, "/") {
		b.WriteByte('/')
	}
	b.WriteString(strings.Join(segments, "/"))
	if len(segments) > 0 && strings.HasSuffix(path, "/") {
		b.WriteByte('/')
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// canonicalQuery keeps one value per name (the last), encodes names and
// values and sorts by name
func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}

	params := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		name = queryUnescape(name)
		if name == "" {
			continue
		}
		params[name] = queryUnescape(value)
	}

	names := sortedKeys(params)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, uriEncode(name)+"="+uriEncode(params[name]))
	}
	return strings.Join(parts, "&")
}

func queryUnescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// uriEncode percent-encodes everything outside the RFC 3986 unreserved set
func uriEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
