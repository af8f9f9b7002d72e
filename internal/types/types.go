package types

// Current document schema versions. Older documents are upgraded by the
// migrations package when they are loaded.
const (
	ProjectVersion   = 3
	WorkspaceVersion = 2
)

// Project is the persisted document holding requests and variable scopes
type Project struct {
	Version    int                  `json:"version" yaml:"version"`
	Tree       string               `json:"tree" yaml:"tree"` // Root folder id
	Folders    map[string]Folder    `json:"folders" yaml:"folders"`
	Requests   map[string]Request   `json:"requests" yaml:"requests"`
	Dimensions map[string]Dimension `json:"dimensions" yaml:"dimensions"`
	DimOrder   []string             `json:"dimOrder" yaml:"dimOrder"`
	Variants   map[string]Variant   `json:"variants" yaml:"variants"`
}

// Folder groups requests and sub-folders. Children are stored only on the
// parent; a node's parent is found by lookup.
type Folder struct {
	Name     string   `json:"name" yaml:"name"`
	Folders  []string `json:"folders" yaml:"folders"`
	Requests []string `json:"requests" yaml:"requests"`
}

// Request is a stored request template. Any string field may contain
// {{name}} placeholders.
type Request struct {
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method  string            `json:"method" yaml:"method"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`
	Auth    Auth              `json:"auth" yaml:"auth,omitempty"`
	TLS     *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// Clone returns a deep copy of the request
func (r *Request) Clone() *Request {
	c := *r
	if r.Headers != nil {
		c.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			c.Headers[k] = v
		}
	}
	if r.TLS != nil {
		tls := *r.TLS
		c.TLS = &tls
	}
	return &c
}

// TLSConfig contains optional per-request TLS settings
type TLSConfig struct {
	CertFile           string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	CAFile             string `json:"caFile,omitempty" yaml:"caFile,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// Dimension is a named axis of configuration (e.g. "Stage")
type Dimension struct {
	Name     string   `json:"name" yaml:"name"`
	Variants []string `json:"variants" yaml:"variants"`
}

// Variant is one concrete set of variable bindings within a dimension
type Variant struct {
	Name string `json:"name" yaml:"name"`
	Vars []Var  `json:"vars" yaml:"vars"`
}

// Var is a single variable binding. Value may reference other variables.
type Var struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Workspace is per-user session state
type Workspace struct {
	Version          int              `json:"version"`
	OpenedResources  []OpenedResource `json:"openedResources"`
	SelectedTab      int              `json:"selectedTab"`
	SelectedVariants Selection        `json:"selectedVariants"`
	ExpandedFolders  []string         `json:"expandedFolders,omitempty"`
}

// ResourceKind identifies what an opened tab points at
type ResourceKind string

const (
	ResourceRequest ResourceKind = "request"
	ResourceFolder  ResourceKind = "folder"
	ResourceVariant ResourceKind = "variant"
)

// Valid reports whether k is one of the known resource kinds
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceRequest, ResourceFolder, ResourceVariant:
		return true
	}
	return false
}

// OpenedResource is one open tab
type OpenedResource struct {
	Type ResourceKind `json:"type"`
	ID   string       `json:"id"`
}

// RequestResult is returned to the presentation layer after a send.
// Field names and nesting are part of the external contract.
type RequestResult struct {
	RequestOptions RequestOptions `json:"requestOptions" yaml:"requestOptions"`
	Response       Response       `json:"response" yaml:"response"`
	Duration       int64          `json:"duration" yaml:"duration"` // milliseconds
}

// RequestOptions is the resolved, signed request exactly as it was sent
type RequestOptions struct {
	Method   string            `json:"method" yaml:"method"`
	URL      string            `json:"url" yaml:"url"`
	Protocol string            `json:"protocol" yaml:"protocol"`
	Hostname string            `json:"hostname" yaml:"hostname"`
	Port     string            `json:"port,omitempty" yaml:"port,omitempty"`
	Path     string            `json:"path" yaml:"path"`
	Headers  map[string]string `json:"headers" yaml:"headers"`
	Body     string            `json:"body,omitempty" yaml:"body,omitempty"`
}

// Response holds the captured HTTP response
type Response struct {
	HTTPVersion     string            `json:"httpVersion" yaml:"httpVersion"`
	StatusCode      int               `json:"statusCode" yaml:"statusCode"`
	StatusMessage   string            `json:"statusMessage" yaml:"statusMessage"`
	Headers         map[string]string `json:"headers" yaml:"headers"`
	RawHeaders      []string          `json:"rawHeaders" yaml:"rawHeaders"` // name, value, name, value, ...
	Data            string            `json:"data" yaml:"data"`
	PeerCertificate *PeerCertificate  `json:"peerCertificate,omitempty" yaml:"peerCertificate,omitempty"`
	Cipher          *CipherSuite      `json:"cipher,omitempty" yaml:"cipher,omitempty"`
}

// PeerCertificate describes the server leaf certificate of an HTTPS
// response. Binary fields are hex encoded.
type PeerCertificate struct {
	Subject        map[string]string `json:"subject" yaml:"subject"`
	Issuer         map[string]string `json:"issuer" yaml:"issuer"`
	SubjectAltName string            `json:"subjectaltname,omitempty" yaml:"subjectaltname,omitempty"`
	ValidFrom      string            `json:"valid_from" yaml:"valid_from"`
	ValidTo        string            `json:"valid_to" yaml:"valid_to"`
	Bits           int               `json:"bits,omitempty" yaml:"bits,omitempty"`
	Fingerprint    string            `json:"fingerprint" yaml:"fingerprint"`
	Fingerprint256 string            `json:"fingerprint256" yaml:"fingerprint256"`
	SerialNumber   string            `json:"serialNumber" yaml:"serialNumber"`
	PubKey         string            `json:"pubkey" yaml:"pubkey"`
	Raw            string            `json:"raw" yaml:"raw"`
	Modulus        string            `json:"modulus,omitempty" yaml:"modulus,omitempty"`
	Exponent       string            `json:"exponent,omitempty" yaml:"exponent,omitempty"`
}

// CipherSuite is the negotiated TLS cipher
type CipherSuite struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// HistoryEntry represents a saved send
type HistoryEntry struct {
	ID              int64             `json:"id"`
	Timestamp       string            `json:"timestamp"`
	RequestID       string            `json:"requestId"`
	RequestName     string            `json:"requestName,omitempty"`
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body,omitempty"`
	ResponseStatus  int               `json:"responseStatus"`
	StatusMessage   string            `json:"statusMessage"`
	ResponseHeaders map[string]string `json:"responseHeaders"`
	ResponseBody    string            `json:"responseBody"`
	Duration        int64             `json:"duration"`
	Error           string            `json:"error,omitempty"`
}
