package types

import (
	"encoding/json"
	"fmt"
)

// AuthType is the wire tag of an auth descriptor
type AuthType string

const (
	AuthNone     AuthType = "none"
	AuthAWSSigV4 AuthType = "aws_sigv4"
)

// AWSCredentialSource is the wire tag of an AWS credential source
type AWSCredentialSource string

const (
	SourceAWSProfile AWSCredentialSource = "aws_cli_profile"
	SourceInline     AWSCredentialSource = "inline"
)

// AuthScheme is implemented by NoAuth and AWSSigV4 only
type AuthScheme interface {
	authType() AuthType
}

// NoAuth sends the request unsigned
type NoAuth struct{}

func (NoAuth) authType() AuthType { return AuthNone }

// AWSSigV4 signs the request with AWS Signature Version 4
type AWSSigV4 struct {
	Region      string
	Service     string
	Credentials AWSCredentials
}

func (AWSSigV4) authType() AuthType { return AuthAWSSigV4 }

// AWSCredentials is implemented by AWSProfileCredentials and
// AWSInlineCredentials only
type AWSCredentials interface {
	source() AWSCredentialSource
}

// AWSProfileCredentials are resolved from the local AWS configuration
type AWSProfileCredentials struct {
	Profile string
}

func (AWSProfileCredentials) source() AWSCredentialSource { return SourceAWSProfile }

// AWSInlineCredentials are stored in the request itself.
//
// SECURITY: these are persisted in plaintext with the project document.
type AWSInlineCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func (AWSInlineCredentials) source() AWSCredentialSource { return SourceInline }

// Auth wraps an AuthScheme so it can be (de)serialized as a tagged object.
// The zero value means no auth.
type Auth struct {
	Scheme AuthScheme
}

// Type returns the wire tag of the wrapped scheme
func (a Auth) Type() AuthType {
	if a.Scheme == nil {
		return AuthNone
	}
	return a.Scheme.authType()
}

// Source returns the credential source tag of an AWS scheme, or "" otherwise
func (c AWSSigV4) Source() AWSCredentialSource {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials.source()
}

// MapStrings returns a copy of the descriptor with fn applied to every
// string field
func (a Auth) MapStrings(fn func(string) (string, error)) (Auth, error) {
	switch s := a.Scheme.(type) {
	case nil, NoAuth:
		return Auth{Scheme: NoAuth{}}, nil
	case AWSSigV4:
		out := AWSSigV4{}
		var err error
		if out.Region, err = fn(s.Region); err != nil {
			return Auth{}, fmt.Errorf("region: %w", err)
		}
		if out.Service, err = fn(s.Service); err != nil {
			return Auth{}, fmt.Errorf("service: %w", err)
		}
		switch c := s.Credentials.(type) {
		case nil:
		case AWSProfileCredentials:
			profile, err := fn(c.Profile)
			if err != nil {
				return Auth{}, fmt.Errorf("profile: %w", err)
			}
			out.Credentials = AWSProfileCredentials{Profile: profile}
		case AWSInlineCredentials:
			var ic AWSInlineCredentials
			if ic.AccessKeyID, err = fn(c.AccessKeyID); err != nil {
				return Auth{}, fmt.Errorf("access key id: %w", err)
			}
			if ic.SecretAccessKey, err = fn(c.SecretAccessKey); err != nil {
				return Auth{}, fmt.Errorf("secret access key: %w", err)
			}
			if ic.SessionToken, err = fn(c.SessionToken); err != nil {
				return Auth{}, fmt.Errorf("session token: %w", err)
			}
			out.Credentials = ic
		default:
			return Auth{}, fmt.Errorf("unknown AWS credential source %T", c)
		}
		return Auth{Scheme: out}, nil
	default:
		return Auth{}, fmt.Errorf("unknown auth scheme %T", s)
	}
}

// authWire is the flat tagged form stored in documents
type authWire struct {
	Type            AuthType            `json:"type" yaml:"type"`
	Source          AWSCredentialSource `json:"source,omitempty" yaml:"source,omitempty"`
	Region          string              `json:"region,omitempty" yaml:"region,omitempty"`
	Service         string              `json:"service,omitempty" yaml:"service,omitempty"`
	Profile         string              `json:"profile,omitempty" yaml:"profile,omitempty"`
	AccessKeyID     string              `json:"accessKeyId,omitempty" yaml:"accessKeyId,omitempty"`
	SecretAccessKey string              `json:"secretAccessKey,omitempty" yaml:"secretAccessKey,omitempty"`
	SessionToken    string              `json:"sessionToken,omitempty" yaml:"sessionToken,omitempty"`
}

func (a Auth) toWire() (authWire, error) {
	switch s := a.Scheme.(type) {
	case nil, NoAuth:
		return authWire{Type: AuthNone}, nil
	case AWSSigV4:
		w := authWire{Type: AuthAWSSigV4, Region: s.Region, Service: s.Service}
		switch c := s.Credentials.(type) {
		case nil:
		case AWSProfileCredentials:
			w.Source = SourceAWSProfile
			w.Profile = c.Profile
		case AWSInlineCredentials:
			w.Source = SourceInline
			w.AccessKeyID = c.AccessKeyID
			w.SecretAccessKey = c.SecretAccessKey
			w.SessionToken = c.SessionToken
		default:
			return authWire{}, fmt.Errorf("unknown AWS credential source %T", c)
		}
		return w, nil
	default:
		return authWire{}, fmt.Errorf("unknown auth scheme %T", s)
	}
}

func (w authWire) toAuth() (Auth, error) {
	switch w.Type {
	case "", AuthNone:
		return Auth{Scheme: NoAuth{}}, nil
	case AuthAWSSigV4:
		s := AWSSigV4{Region: w.Region, Service: w.Service}
		switch w.Source {
		case SourceAWSProfile:
			s.Credentials = AWSProfileCredentials{Profile: w.Profile}
		case SourceInline:
			s.Credentials = AWSInlineCredentials{
				AccessKeyID:     w.AccessKeyID,
				SecretAccessKey: w.SecretAccessKey,
				SessionToken:    w.SessionToken,
			}
		case "":
			// Left unset; signing reports the missing credentials
		default:
			return Auth{}, fmt.Errorf("unknown aws_sigv4 source %q", w.Source)
		}
		return Auth{Scheme: s}, nil
	default:
		return Auth{}, fmt.Errorf("unknown auth type %q", w.Type)
	}
}

// UnmarshalJSON decodes the tagged object form
func (a *Auth) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Auth{Scheme: NoAuth{}}
		return nil
	}
	var w authWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("auth descriptor must be an object: %w", err)
	}
	auth, err := w.toAuth()
	if err != nil {
		return err
	}
	*a = auth
	return nil
}

// MarshalJSON encodes the tagged object form
func (a Auth) MarshalJSON() ([]byte, error) {
	w, err := a.toWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalYAML implements YAML decoding of the tagged object form
func (a *Auth) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var w authWire
	if err := unmarshal(&w); err != nil {
		return fmt.Errorf("auth descriptor must be a mapping: %w", err)
	}
	auth, err := w.toAuth()
	if err != nil {
		return err
	}
	*a = auth
	return nil
}

// MarshalYAML implements YAML encoding of the tagged object form
func (a Auth) MarshalYAML() (interface{}, error) {
	w, err := a.toWire()
	if err != nil {
		return nil, err
	}
	return w, nil
}
