package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wangchj/inflight-sub000/internal/types"
)

// DefaultTimeout applies when no request timeout is configured
const DefaultTimeout = 30 * time.Second

// Transport performs a single HTTP/1.1 exchange per Send and captures the
// protocol details of the response. Connections are never reused, proxies
// are never consulted and redirects are returned as is.
type Transport struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewTransport creates a transport. A zero timeout selects DefaultTimeout.
func NewTransport(timeout time.Duration, logger *slog.Logger) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transport{timeout: timeout, logger: logger}
}

// Send performs req and returns the captured response
func (t *Transport) Send(ctx context.Context, req *types.Request) (*types.Response, error) {
	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = bytes.NewBufferString(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, newTransportError(fmt.Errorf("failed to create request: %w", err))
	}

	for key, value := range req.Headers {
		if strings.EqualFold(key, "Host") {
			httpReq.Host = value
			continue
		}
		httpReq.Header.Set(key, value)
	}

	tlsCfg, err := buildTLSConfig(req.TLS)
	if err != nil {
		return nil, newTransportError(fmt.Errorf("failed to configure TLS: %w", err))
	}

	c := &capture{}
	client := &http.Client{
		Timeout:   t.timeout,
		Transport: newHTTPTransport(c, tlsCfg),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(fmt.Errorf("failed to read response body: %w", err))
	}

	recorded, state := c.snapshot()
	rawHeaders, ok := parseRawHeaders(recorded)
	if !ok {
		t.logger.Debug("raw headers unavailable, using parsed header map",
			slog.String("url", req.URL),
			slog.Int("recorded", len(recorded)))
		rawHeaders = rawHeadersFromMap(resp.Header)
	}

	response := &types.Response{
		HTTPVersion:   fmt.Sprintf("%d.%d", resp.ProtoMajor, resp.ProtoMinor),
		StatusCode:    resp.StatusCode,
		StatusMessage: statusMessage(resp),
		Headers:       headerMap(rawHeaders),
		RawHeaders:    rawHeaders,
		Data:          string(bodyBytes),
	}

	if state != nil {
		response.Cipher = cipherSuite(state)
		if len(state.PeerCertificates) > 0 {
			response.PeerCertificate = peerCertificate(state.PeerCertificates[0])
		}
	}

	return response, nil
}

// newHTTPTransport returns a single-use transport whose connections report
// to c. TLS is negotiated in the dialer so the connection state is recorded.
func newHTTPTransport(c *capture, tlsCfg *tls.Config) *http.Transport {
	dialer := &net.Dialer{Timeout: DefaultTimeout}

	return &http.Transport{
		Proxy:              nil,
		DisableKeepAlives:  true,
		DisableCompression: true,
		ForceAttemptHTTP2:  false,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return c.wrap(conn), nil
		},
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			cfg := tlsCfg.Clone()
			if cfg.ServerName == "" {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					host = addr
				}
				cfg.ServerName = host
			}
			cfg.NextProtos = []string{"http/1.1"}

			tlsConn := tls.Client(conn, cfg)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			c.setTLSState(tlsConn.ConnectionState())
			return c.wrap(tlsConn), nil
		},
	}
}

// buildTLSConfig creates a TLS configuration with optional mTLS settings
func buildTLSConfig(tlsConfig *types.TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{}
	if tlsConfig == nil {
		return tlsCfg, nil
	}

	tlsCfg.InsecureSkipVerify = tlsConfig.InsecureSkipVerify

	// Load client certificate if provided (for mTLS)
	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	// Load CA certificate if provided (for server verification)
	if tlsConfig.CAFile != "" {
		caCert, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = caCertPool
	}

	return tlsCfg, nil
}

// statusMessage strips the code from the status line ("200 OK" → "OK")
func statusMessage(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, code))
}
