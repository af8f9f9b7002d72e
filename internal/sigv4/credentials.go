package sigv4

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/wangchj/inflight-sub000/internal/types"
)

// CredentialsProvider resolves credentials for a named AWS CLI profile
type CredentialsProvider interface {
	ResolveCredentials(ctx context.Context, profile string) (Credentials, error)
}

// SharedConfigProvider reads profiles through the AWS SDK default chain
// (~/.aws/config, ~/.aws/credentials, SSO and credential_process included)
type SharedConfigProvider struct{}

func (SharedConfigProvider) ResolveCredentials(ctx context.Context, profile string) (Credentials, error) {
	var opts []func(*config.LoadOptions) error
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load AWS config for profile %q: %w", profile, err)
	}
	if cfg.Credentials == nil {
		return Credentials{}, fmt.Errorf("no credentials configured for profile %q", profile)
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to retrieve credentials for profile %q: %w", profile, err)
	}

	return Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, nil
}

// ProviderFunc adapts a function to CredentialsProvider
type ProviderFunc func(ctx context.Context, profile string) (Credentials, error)

func (f ProviderFunc) ResolveCredentials(ctx context.Context, profile string) (Credentials, error) {
	return f(ctx, profile)
}

// ResolveCredentials returns the key material for a SigV4 descriptor. Inline
// credentials are used as stored; profiles go through provider.
func ResolveCredentials(ctx context.Context, auth types.AWSSigV4, provider CredentialsProvider) (Credentials, error) {
	switch c := auth.Credentials.(type) {
	case types.AWSInlineCredentials:
		return Credentials{
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			SessionToken:    c.SessionToken,
		}, nil
	case types.AWSProfileCredentials:
		if provider == nil {
			return Credentials{}, &SigningError{Reason: "no credentials provider configured"}
		}
		creds, err := provider.ResolveCredentials(ctx, c.Profile)
		if err != nil {
			return Credentials{}, &SigningError{Reason: fmt.Sprintf("credentials provider failed for profile %q", c.Profile), Err: err}
		}
		return creds, nil
	case nil:
		return Credentials{}, missing("credentials")
	default:
		return Credentials{}, &SigningError{Reason: fmt.Sprintf("unsupported credential source %T", c)}
	}
}
