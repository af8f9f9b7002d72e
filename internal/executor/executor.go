package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/wangchj/inflight-sub000/internal/clock"
	"github.com/wangchj/inflight-sub000/internal/environment"
	"github.com/wangchj/inflight-sub000/internal/parser"
	"github.com/wangchj/inflight-sub000/internal/sigv4"
	"github.com/wangchj/inflight-sub000/internal/types"
)

// Sender performs one HTTP exchange
type Sender interface {
	Send(ctx context.Context, req *types.Request) (*types.Response, error)
}

// VariableSource provides the composed variables used for resolution
type VariableSource interface {
	Snapshot() environment.VarMap
}

// Executor turns a stored request into a sent one: resolve, sign, send
type Executor struct {
	vars        VariableSource
	signer      *sigv4.Signer
	credentials sigv4.CredentialsProvider
	transport   Sender
	clock       clock.Clock
	logger      *slog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithClock sets the clock used for signing timestamps and durations
func WithClock(c clock.Clock) Option {
	return func(e *Executor) {
		e.clock = c
	}
}

// WithCredentialsProvider replaces the AWS shared config provider
func WithCredentialsProvider(p sigv4.CredentialsProvider) Option {
	return func(e *Executor) {
		e.credentials = p
	}
}

// New creates an executor reading variables from vars and sending through transport
func New(vars VariableSource, transport Sender, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		vars:        vars,
		credentials: sigv4.SharedConfigProvider{},
		transport:   transport,
		clock:       clock.SystemUTC{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.signer = sigv4.NewSigner(e.clock)
	return e
}

// Execute resolves req against the current variables, signs it when
// configured and sends it
func (e *Executor) Execute(ctx context.Context, req *types.Request) (*types.RequestResult, error) {
	return e.ExecuteWith(ctx, req, e.vars.Snapshot())
}

// ExecuteWith is Execute with an explicit variable lookup
func (e *Executor) ExecuteWith(ctx context.Context, req *types.Request, vars parser.Lookup) (*types.RequestResult, error) {
	resolved, err := parser.NewVariableResolver(vars).ResolveRequest(req)
	if err != nil {
		return nil, &ExecutionError{Stage: StageResolve, Err: err}
	}

	outgoing, err := e.sign(ctx, resolved)
	if err != nil {
		return nil, &ExecutionError{Stage: StageSign, Err: err}
	}

	options, err := requestOptions(outgoing)
	if err != nil {
		return nil, &ExecutionError{Stage: StageSend, Err: newTransportError(err)}
	}

	start := e.clock.NowUTC()
	response, err := e.transport.Send(ctx, outgoing)
	duration := e.clock.NowUTC().Sub(start).Milliseconds()
	if err != nil {
		e.logger.Warn("request failed",
			slog.String("method", outgoing.Method),
			slog.String("url", outgoing.URL),
			slog.String("error", err.Error()))
		return nil, &ExecutionError{Stage: StageSend, Err: err}
	}

	e.logger.Info("request sent",
		slog.String("method", outgoing.Method),
		slog.String("url", outgoing.URL),
		slog.Int("status", response.StatusCode),
		slog.Int64("duration_ms", duration))

	return &types.RequestResult{
		RequestOptions: options,
		Response:       *response,
		Duration:       duration,
	}, nil
}

// sign returns req with SigV4 headers applied, or req itself when it has no
// auth
func (e *Executor) sign(ctx context.Context, req *types.Request) (*types.Request, error) {
	switch scheme := req.Auth.Scheme.(type) {
	case nil, types.NoAuth:
		return req, nil
	case types.AWSSigV4:
		if scheme.Source() == types.SourceInline {
			e.logger.Warn("signing with inline AWS credentials stored in plaintext",
				slog.String("request", req.Name))
		}

		creds, err := sigv4.ResolveCredentials(ctx, scheme, e.credentials)
		if err != nil {
			return nil, err
		}

		result, err := e.signer.Sign(sigv4.Input{
			Method:  req.Method,
			URL:     req.URL,
			Headers: req.Headers,
			Body:    []byte(req.Body),
		}, sigv4.Config{Region: scheme.Region, Service: scheme.Service}, creds)
		if err != nil {
			return nil, err
		}

		signed := req.Clone()
		signed.Headers = result.ApplyHeaders(req.Headers)

		e.logger.Debug("request signed",
			slog.String("service", scheme.Service),
			slog.String("region", scheme.Region),
			slog.String("signed_headers", result.SignedHeaders))
		return signed, nil
	default:
		return nil, fmt.Errorf("unsupported auth scheme %T", scheme)
	}
}

// requestOptions describes the outgoing request as it will be sent
func requestOptions(req *types.Request) (types.RequestOptions, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return types.RequestOptions{}, fmt.Errorf("invalid URL %q: %w", req.URL, err)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = v
	}

	return types.RequestOptions{
		Method:   req.Method,
		URL:      req.URL,
		Protocol: u.Scheme + ":",
		Hostname: u.Hostname(),
		Port:     u.Port(),
		Path:     path,
		Headers:  headers,
		Body:     req.Body,
	}, nil
}
