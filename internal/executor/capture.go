package executor

import (
	"bufio"
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"net"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/wangchj/inflight-sub000/internal/types"
)

// maxRecordedBytes bounds how much of the response stream is kept for raw
// header parsing
const maxRecordedBytes = 64 * 1024

// certTimeLayout matches the OpenSSL text form, e.g. "Aug 30 12:36:00 2015 GMT"
const certTimeLayout = "Jan _2 15:04:05 2006 GMT"

// capture collects protocol details of the single connection used by a send
type capture struct {
	mu       sync.Mutex
	recorded bytes.Buffer
	tlsState *tls.ConnectionState
}

func (c *capture) wrap(conn net.Conn) net.Conn {
	return &recordingConn{Conn: conn, capture: c}
}

func (c *capture) setTLSState(state tls.ConnectionState) {
	c.mu.Lock()
	c.tlsState = &state
	c.mu.Unlock()
}

func (c *capture) record(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := maxRecordedBytes - c.recorded.Len()
	if room <= 0 {
		return
	}
	if len(p) > room {
		p = p[:room]
	}
	c.recorded.Write(p)
}

func (c *capture) snapshot() ([]byte, *tls.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.recorded.Bytes()), c.tlsState
}

// recordingConn copies everything read from the server into its capture
type recordingConn struct {
	net.Conn
	capture *capture
}

func (r *recordingConn) Read(p []byte) (int, error) {
	n, err := r.Conn.Read(p)
	if n > 0 {
		r.capture.record(p[:n])
	}
	return n, err
}

// parseRawHeaders returns the final response header block as a flat
// name, value, name, value sequence in wire order. Interim 1xx blocks are
// skipped. ok is false when no complete final block was recorded.
func parseRawHeaders(data []byte) (raw []string, ok bool) {
	reader := bufio.NewReader(bytes.NewReader(data))
	tp := textproto.NewReader(reader)

	for {
		statusLine, err := tp.ReadLine()
		if err != nil {
			return nil, false
		}
		code, err := statusCode(statusLine)
		if err != nil {
			return nil, false
		}

		raw = raw[:0]
		complete := false
		for {
			line, err := tp.ReadContinuedLine()
			if err != nil {
				return nil, false
			}
			if line == "" {
				complete = true
				break
			}
			name, value, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			raw = append(raw, name, strings.TrimSpace(value))
		}
		if !complete {
			return nil, false
		}

		// 101 Switching Protocols is final
		if code >= 100 && code < 200 && code != 101 {
			continue
		}
		return raw, true
	}
}

func statusCode(statusLine string) (int, error) {
	_, rest, found := strings.Cut(statusLine, " ")
	if !found || !strings.HasPrefix(statusLine, "HTTP/") {
		return 0, fmt.Errorf("malformed status line %q", statusLine)
	}
	codeStr, _, _ := strings.Cut(rest, " ")
	return strconv.Atoi(codeStr)
}

// rawHeadersFromMap is the fallback when the wire bytes could not be parsed.
// Order follows sorted names.
func rawHeadersFromMap(h map[string][]string) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var raw []string
	for _, name := range names {
		for _, v := range h[name] {
			raw = append(raw, name, v)
		}
	}
	return raw
}

// headerMap lower-cases names and joins duplicates with ", "
func headerMap(raw []string) map[string]string {
	headers := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		name := strings.ToLower(raw[i])
		if existing, ok := headers[name]; ok {
			headers[name] = existing + ", " + raw[i+1]
		} else {
			headers[name] = raw[i+1]
		}
	}
	return headers
}

func cipherSuite(state *tls.ConnectionState) *types.CipherSuite {
	return &types.CipherSuite{
		Name:    tls.CipherSuiteName(state.CipherSuite),
		Version: tlsVersionName(state.Version),
	}
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLSv1"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	}
	return tls.VersionName(v)
}

func peerCertificate(cert *x509.Certificate) *types.PeerCertificate {
	pc := &types.PeerCertificate{
		Subject:        nameMap(cert.Subject),
		Issuer:         nameMap(cert.Issuer),
		SubjectAltName: subjectAltName(cert),
		ValidFrom:      cert.NotBefore.UTC().Format(certTimeLayout),
		ValidTo:        cert.NotAfter.UTC().Format(certTimeLayout),
		Fingerprint:    fingerprint(sha1Sum(cert.Raw)),
		Fingerprint256: fingerprint(sha256Sum(cert.Raw)),
		SerialNumber:   serialHex(cert),
		PubKey:         hex.EncodeToString(cert.RawSubjectPublicKeyInfo),
		Raw:            hex.EncodeToString(cert.Raw),
	}

	switch key := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		pc.Bits = key.N.BitLen()
		pc.Modulus = strings.ToUpper(key.N.Text(16))
		pc.Exponent = "0x" + strconv.FormatInt(int64(key.E), 16)
	case *ecdsa.PublicKey:
		pc.Bits = key.Curve.Params().BitSize
	}

	return pc
}

func nameMap(name pkix.Name) map[string]string {
	m := make(map[string]string)
	add := func(key string, values []string) {
		if len(values) > 0 {
			m[key] = strings.Join(values, ", ")
		}
	}
	add("C", name.Country)
	add("ST", name.Province)
	add("L", name.Locality)
	add("O", name.Organization)
	add("OU", name.OrganizationalUnit)
	if name.CommonName != "" {
		m["CN"] = name.CommonName
	}
	return m
}

func subjectAltName(cert *x509.Certificate) string {
	var parts []string
	for _, dns := range cert.DNSNames {
		parts = append(parts, "DNS:"+dns)
	}
	for _, ip := range cert.IPAddresses {
		parts = append(parts, "IP Address:"+ip.String())
	}
	for _, email := range cert.EmailAddresses {
		parts = append(parts, "email:"+email)
	}
	for _, uri := range cert.URIs {
		parts = append(parts, "URI:"+uri.String())
	}
	return strings.Join(parts, ", ")
}

func serialHex(cert *x509.Certificate) string {
	if cert.SerialNumber == nil {
		return ""
	}
	s := strings.ToUpper(cert.SerialNumber.Text(16))
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return s
}

func sha1Sum(b []byte) []byte {
	sum := sha1.Sum(b)
	return sum[:]
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// fingerprint formats a digest as colon separated upper-case hex pairs
func fingerprint(sum []byte) string {
	pairs := make([]string, len(sum))
	for i, b := range sum {
		pairs[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(pairs, ":")
}
