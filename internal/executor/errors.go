package executor

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Stage names the step of an execution that failed
type Stage string

const (
	StageResolve Stage = "resolve"
	StageSign    Stage = "sign"
	StageSend    Stage = "send"
)

// ExecutionError wraps the failure of one execution stage
type ExecutionError struct {
	Stage Stage
	Err   error
}

func (e *ExecutionError) Error() string {
	switch e.Stage {
	case StageResolve:
		return fmt.Sprintf("failed to resolve request: %v", e.Err)
	case StageSign:
		return fmt.Sprintf("failed to sign request: %v", e.Err)
	default:
		return fmt.Sprintf("failed to send request: %v", e.Err)
	}
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TransportError is a network level failure with a user facing hint
type TransportError struct {
	Hint string
	Err  error
}

func (e *TransportError) Error() string {
	return e.Hint
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(err error) *TransportError {
	return &TransportError{Hint: categorizeError(err), Err: err}
}

const timeoutHint = "Request timeout - check URL and try increasing requestTimeout in config.yaml (default: 30s)"

// categorizeRequestError analyzes error strings from HTTP requests and provides
// actionable, user-friendly error messages based on the error type.
func categorizeRequestError(errStr string) string {
	if errStr == "" {
		return ""
	}

	errLower := strings.ToLower(errStr)

	if strings.Contains(errLower, "context canceled") ||
		strings.Contains(errLower, "context cancelled") {
		return "Request cancelled"
	}

	if strings.Contains(errLower, "context deadline exceeded") ||
		strings.Contains(errLower, "deadline exceeded") {
		return timeoutHint
	}

	// DNS resolution errors
	if strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "dns") ||
		strings.Contains(errLower, "dial tcp: lookup") {
		return "DNS resolution failed - verify hostname is correct and network is available"
	}

	if strings.Contains(errLower, "connection refused") {
		return "Connection refused - check if server is running and port is correct"
	}

	if strings.Contains(errLower, "connection reset") {
		return "Connection reset by server - server may have crashed or network issue occurred"
	}

	if strings.Contains(errLower, "network is unreachable") ||
		strings.Contains(errLower, "no route to host") {
		return "Network unreachable - check network connection and firewall settings"
	}

	// TLS/SSL errors
	if strings.Contains(errLower, "tls") ||
		strings.Contains(errLower, "ssl") ||
		strings.Contains(errLower, "certificate") ||
		strings.Contains(errLower, "x509") {
		return categorizeSSLError(errStr)
	}

	if strings.Contains(errLower, "invalid url") ||
		strings.Contains(errLower, "unsupported protocol") {
		return "Invalid URL - verify the URL format and protocol (http/https)"
	}

	// EOF errors (connection closed unexpectedly)
	if strings.Contains(errLower, "eof") {
		return "Connection closed unexpectedly - server may have terminated the connection prematurely"
	}

	if strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "timed out") {
		return "Connection timeout - server took too long to respond, try increasing requestTimeout"
	}

	if strings.Contains(errLower, "malformed http") ||
		strings.Contains(errLower, "bad request") {
		return "Malformed HTTP request - check request format, headers, and body"
	}

	return "Request failed: " + errStr
}

// categorizeSSLError provides specific guidance for TLS/SSL certificate errors
func categorizeSSLError(errStr string) string {
	errLower := strings.ToLower(errStr)

	if strings.Contains(errLower, "certificate is not trusted") ||
		strings.Contains(errLower, "unknown authority") {
		return "TLS certificate verification failed - certificate is not trusted. Set tls.caFile on the request or disable verification (insecure)"
	}

	if strings.Contains(errLower, "expired") {
		return "TLS certificate has expired - contact server administrator or disable verification (insecure)"
	}

	if strings.Contains(errLower, "certificate is valid for") ||
		strings.Contains(errLower, "name mismatch") ||
		strings.Contains(errLower, "doesn't match") {
		return "TLS hostname mismatch - certificate doesn't match the requested hostname"
	}

	if strings.Contains(errLower, "handshake") {
		return "TLS handshake failed - check TLS version compatibility and cipher suites"
	}

	if strings.Contains(errLower, "bad certificate") {
		return "TLS bad certificate - client certificate may be invalid or not accepted by server"
	}

	if strings.Contains(errLower, "certificate required") {
		return "TLS client certificate required - set tls.certFile and tls.keyFile on the request"
	}

	return "TLS/SSL error - check certificate configuration and TLS settings: " + errStr
}

// categorizeError unwraps err to its root cause and returns a hint for it
func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	// Typed errors first, outermost to innermost
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return timeoutHint
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return "TLS certificate signed by unknown authority - set tls.caFile on the request or disable verification (insecure)"
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return "TLS hostname mismatch - certificate doesn't match the requested hostname"
	}
	var invalidCert x509.CertificateInvalidError
	if errors.As(err, &invalidCert) {
		return "TLS certificate is invalid: " + invalidCert.Error()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if hint := categorizeNetError(opErr); hint != "" {
			return hint
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutHint
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}

	return categorizeRequestError(err.Error())
}

// categorizeNetError handles net.OpError syscall failures. An empty result
// means the string categorizer should decide.
func categorizeNetError(e *net.OpError) string {
	if e.Timeout() {
		return "Connection timeout - server took too long to respond, try increasing requestTimeout"
	}

	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED:
			return "Connection refused - check if server is running and port is correct"
		case syscall.ECONNRESET:
			return "Connection reset by server - server may have crashed or network issue occurred"
		case syscall.ENETUNREACH:
			return "Network unreachable - check network connection and firewall settings"
		case syscall.EHOSTUNREACH:
			return "Host unreachable - check if server is online and accessible"
		}
	}

	return ""
}
