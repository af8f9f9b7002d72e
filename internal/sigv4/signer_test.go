package sigv4

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangchj/inflight-sub000/internal/clock"
	"github.com/wangchj/inflight-sub000/internal/types"
)

var (
	exampleCreds = Credentials{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	}
	exampleTime = time.Date(2015, 8, 30, 12, 36, 0, 0, time.UTC)
)

func newTestSigner() *Signer {
	return NewSigner(clock.Fixed(exampleTime))
}

func TestSign_GetVanilla(t *testing.T) {
	res, err := newTestSigner().Sign(
		Input{Method: "GET", URL: "https://example.amazonaws.com/"},
		Config{Region: "us-east-1", Service: "service"},
		exampleCreds,
	)
	require.NoError(t, err)

	assert.Equal(t, "5fa00fa31553b73ebf1942676e86291e8372ff2a2260956d9b8aae1d763fbf31", res.Signature)
	assert.Equal(t, "host;x-amz-date", res.SignedHeaders)
	assert.Equal(t,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20150830/us-east-1/service/aws4_request, SignedHeaders=host;x-amz-date, Signature=5fa00fa31553b73ebf1942676e86291e8372ff2a2260956d9b8aae1d763fbf31",
		res.Headers[HeaderAuthorization])
	assert.Equal(t, "20150830T123600Z", res.Headers[HeaderDate])
	assert.Equal(t, "example.amazonaws.com", res.Headers[HeaderHost])
	assert.NotContains(t, res.Headers, HeaderSecurityToken)
}

func TestSign_ExecuteAPIPost(t *testing.T) {
	res, err := newTestSigner().Sign(
		Input{
			Method:  "POST",
			URL:     "https://abc123.execute-api.us-east-1.amazonaws.com/v1/items?id=42",
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    []byte(`{"name":"widget"}`),
		},
		Config{Region: "us-east-1", Service: "execute-api"},
		exampleCreds,
	)
	require.NoError(t, err)

	assert.Equal(t, "POST\n/v1/items\nid=42\n"+
		"content-type:application/json\n"+
		"host:abc123.execute-api.us-east-1.amazonaws.com\n"+
		"x-amz-date:20150830T123600Z\n\n"+
		"content-type;host;x-amz-date\n"+
		"256e2b36195d6c9d25b78bf0df70019cb60421b088cf96ca21e570fbfc34f6b2", res.CanonicalRequest)
	assert.Equal(t, "AWS4-HMAC-SHA256\n20150830T123600Z\n"+
		"20150830/us-east-1/execute-api/aws4_request\n"+
		"483050598a202856fc5f2db8084964d1d45d031a562ced4717e704d907190419", res.StringToSign)
	assert.Equal(t,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20150830/us-east-1/execute-api/aws4_request, SignedHeaders=content-type;host;x-amz-date, Signature=d17d969fa0a75158f00a4d2d9744cda32d6ef333b2cdc4f7bbfd94b47ffac3d5",
		res.Headers[HeaderAuthorization])
}

func TestSign_SessionTokenAndQuerySorting(t *testing.T) {
	creds := exampleCreds
	creds.SessionToken = "TOKEN123"

	res, err := newTestSigner().Sign(
		Input{
			Method: "GET",
			URL:    "https://abc123.execute-api.us-east-1.amazonaws.com:443/dev/items?q=hello%20world&id=7&id=42&a=1",
			Headers: map[string]string{
				"User-Agent":    "inflight/1.0",
				"Authorization": "Bearer stale",
				"X-Amz-Date":    "19990101T000000Z",
			},
		},
		Config{Region: "us-east-1", Service: "execute-api"},
		creds,
	)
	require.NoError(t, err)

	assert.Contains(t, res.CanonicalRequest, "\na=1&id=42&q=hello%20world\n")
	assert.Equal(t, "host;x-amz-date;x-amz-security-token", res.SignedHeaders)
	assert.Equal(t, "5d4ab3cb07af5d7da9eb8bf143913fe617f607fcb8671bf2800a90d6ff792231", res.Signature)
	assert.Equal(t, "TOKEN123", res.Headers[HeaderSecurityToken])
	assert.Equal(t, "abc123.execute-api.us-east-1.amazonaws.com", res.Headers[HeaderHost])
}

func TestSign_PathNormalizationAndHeaderValues(t *testing.T) {
	res, err := newTestSigner().Sign(
		Input{
			Method:  "GET",
			URL:     "https://example.amazonaws.com:8443/a/./b/../c%20d/",
			Headers: map[string]string{"X-Custom": "  a    b  ", "Range": "bytes=0-1"},
		},
		Config{Region: "us-east-1", Service: "service"},
		exampleCreds,
	)
	require.NoError(t, err)

	assert.Contains(t, res.CanonicalRequest, "GET\n/a/c%2520d/\n")
	assert.Contains(t, res.CanonicalRequest, "x-custom:a b\n")
	assert.Equal(t, "host;x-amz-date;x-custom", res.SignedHeaders)
	assert.Equal(t, "example.amazonaws.com:8443", res.Headers[HeaderHost])
	assert.Equal(t, "640a24d7d053d31f5a461ca7151bf611c30ff42bddbc9e3a0e3856ca67810ab3", res.Signature)
}

func TestCanonicalURI(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		service string
		want    string
	}{
		{"empty path", "https://h", "service", "/"},
		{"root", "https://h/", "service", "/"},
		{"double encoded", "https://h/a%20b", "service", "/a%2520b"},
		{"s3 single encoded", "https://h/a%20b", "s3", "/a%20b"},
		{"s3 keeps dot segments", "https://h/a/./b", "s3", "/a/./b"},
		{"collapse slashes", "https://h//a//b", "service", "/a/b"},
		{"dot dot at root", "https://h/../a", "service", "/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestSigner().Sign(
				Input{Method: "GET", URL: tt.url},
				Config{Region: "us-east-1", Service: tt.service},
				exampleCreds,
			)
			require.NoError(t, err)
			assert.Contains(t, res.CanonicalRequest, "GET\n"+tt.want+"\n")
		})
	}
}

func TestSign_NilAndEmptyBodyHashIdentically(t *testing.T) {
	s := newTestSigner()
	cfg := Config{Region: "us-east-1", Service: "service"}

	a, err := s.Sign(Input{Method: "POST", URL: "https://example.amazonaws.com/", Body: nil}, cfg, exampleCreds)
	require.NoError(t, err)
	b, err := s.Sign(Input{Method: "POST", URL: "https://example.amazonaws.com/", Body: []byte{}}, cfg, exampleCreds)
	require.NoError(t, err)

	assert.Equal(t, a.Signature, b.Signature)
	assert.Contains(t, a.CanonicalRequest, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
}

func TestSign_Deterministic(t *testing.T) {
	in := Input{
		Method:  "PUT",
		URL:     "https://example.amazonaws.com/x?b=2&a=1",
		Headers: map[string]string{"X-B": "2", "X-A": "1", "Content-Type": "text/plain"},
		Body:    []byte("payload"),
	}
	cfg := Config{Region: "eu-west-1", Service: "service"}

	first, err := newTestSigner().Sign(in, cfg, exampleCreds)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := newTestSigner().Sign(in, cfg, exampleCreds)
		require.NoError(t, err)
		assert.Equal(t, first.Headers, again.Headers)
	}

	later, err := newTestSigner().SignAt(in, cfg, exampleCreds, exampleTime.Add(time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, first.Signature, later.Signature)
}

func TestSign_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		creds  Credentials
		url    string
		reason string
	}{
		{"region", Config{Service: "s"}, exampleCreds, "https://h/", "missing region"},
		{"service", Config{Region: "r"}, exampleCreds, "https://h/", "missing service"},
		{"access key", Config{Region: "r", Service: "s"}, Credentials{SecretAccessKey: "x"}, "https://h/", "missing access key id"},
		{"secret key", Config{Region: "r", Service: "s"}, Credentials{AccessKeyID: "x"}, "https://h/", "missing secret access key"},
		{"host", Config{Region: "r", Service: "s"}, exampleCreds, "/relative", "missing host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestSigner().Sign(Input{Method: "GET", URL: tt.url}, tt.cfg, tt.creds)
			var signErr *SigningError
			require.ErrorAs(t, err, &signErr)
			assert.Equal(t, tt.reason, signErr.Reason)
		})
	}
}

func TestSigningKey_AWSDocumentedExample(t *testing.T) {
	key := SigningKey("wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY", "20120215", "us-east-1", "iam")
	assert.Equal(t, "f4780e2d9f65fa895f9c67b32ce1baf0b0d8a43505a000a1a9e090d414db404d", hex.EncodeToString(key))
}

func TestApplyHeaders_ReplacesPreviousSignature(t *testing.T) {
	res := &Result{Headers: map[string]string{
		HeaderAuthorization: "AWS4-HMAC-SHA256 new",
		HeaderDate:          "20150830T123600Z",
		HeaderHost:          "example.amazonaws.com",
	}}

	got := res.ApplyHeaders(map[string]string{
		"authorization":        "old",
		"X-AMZ-DATE":           "old",
		"x-amz-security-token": "old-token",
		"Content-Type":         "application/json",
	})

	assert.Equal(t, map[string]string{
		HeaderAuthorization: "AWS4-HMAC-SHA256 new",
		HeaderDate:          "20150830T123600Z",
		HeaderHost:          "example.amazonaws.com",
		"Content-Type":      "application/json",
	}, got)
}

func TestResolveCredentials(t *testing.T) {
	ctx := context.Background()
	provider := ProviderFunc(func(ctx context.Context, profile string) (Credentials, error) {
		if profile == "dev" {
			return Credentials{AccessKeyID: "AKIDDEV", SecretAccessKey: "devsecret"}, nil
		}
		return Credentials{}, errors.New("profile not found")
	})

	t.Run("inline", func(t *testing.T) {
		creds, err := ResolveCredentials(ctx, types.AWSSigV4{
			Credentials: types.AWSInlineCredentials{AccessKeyID: "AK", SecretAccessKey: "SK", SessionToken: "T"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, Credentials{AccessKeyID: "AK", SecretAccessKey: "SK", SessionToken: "T"}, creds)
	})

	t.Run("profile", func(t *testing.T) {
		creds, err := ResolveCredentials(ctx, types.AWSSigV4{
			Credentials: types.AWSProfileCredentials{Profile: "dev"},
		}, provider)
		require.NoError(t, err)
		assert.Equal(t, "AKIDDEV", creds.AccessKeyID)
	})

	t.Run("provider failure", func(t *testing.T) {
		_, err := ResolveCredentials(ctx, types.AWSSigV4{
			Credentials: types.AWSProfileCredentials{Profile: "missing"},
		}, provider)
		var signErr *SigningError
		require.ErrorAs(t, err, &signErr)
		assert.Contains(t, signErr.Error(), `"missing"`)
		assert.EqualError(t, errors.Unwrap(err), "profile not found")
	})

	t.Run("no credentials", func(t *testing.T) {
		_, err := ResolveCredentials(ctx, types.AWSSigV4{}, provider)
		var signErr *SigningError
		require.ErrorAs(t, err, &signErr)
		assert.Equal(t, "missing credentials", signErr.Reason)
	})
}

func TestSharedConfigProvider(t *testing.T) {
	dir := t.TempDir()
	credsFile := filepath.Join(dir, "credentials")
	configFile := filepath.Join(dir, "config")

	require.NoError(t, os.WriteFile(credsFile, []byte(
		"[dev]\naws_access_key_id = AKIDFROMFILE\naws_secret_access_key = filesecret\naws_session_token = filetoken\n",
	), 0600))
	require.NoError(t, os.WriteFile(configFile, []byte("[profile dev]\nregion = us-east-1\n"), 0600))

	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", credsFile)
	t.Setenv("AWS_CONFIG_FILE", configFile)
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	creds, err := SharedConfigProvider{}.ResolveCredentials(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, Credentials{
		AccessKeyID:     "AKIDFROMFILE",
		SecretAccessKey: "filesecret",
		SessionToken:    "filetoken",
	}, creds)
}
