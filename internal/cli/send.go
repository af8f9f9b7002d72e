package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/wangchj/inflight-sub000/internal/config"
	"github.com/wangchj/inflight-sub000/internal/environment"
	"github.com/wangchj/inflight-sub000/internal/filter"
	"github.com/wangchj/inflight-sub000/internal/parser"
	"github.com/wangchj/inflight-sub000/internal/types"
)

// SendOptions contains options for sending a stored request
type SendOptions struct {
	Request      string   // id, path or name
	Selections   []string // dimension=variant pairs for this send only, in order
	ExtraVars    []string // key=value pairs from -e flag
	EnvFile      string   // path to .env file
	BodyOverride string
	OutputFormat string // json, yaml, text, body
	Filter       string // JMESPath filter expression
	Query        string // JMESPath query expression
	SavePath     string
	Copy         bool
	ShowFull     bool
	NoHistory    bool
	Prompt       bool // ask for missing variables on a terminal
}

// IO bundles the streams a command reads and writes
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdIO returns the process streams
func StdIO() IO {
	return IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Send resolves, signs and sends a stored request and prints the result.
// The result is returned so the caller can pick an exit code.
func Send(ctx context.Context, app *App, opts SendOptions, streams IO) (*types.RequestResult, error) {
	requestID, req, err := app.Session.FindRequest(opts.Request)
	if err != nil {
		return nil, err
	}

	vars, err := composeForSend(app, opts)
	if err != nil {
		return nil, err
	}

	if opts.BodyOverride != "" {
		req.Body = opts.BodyOverride
	}

	if missing := parser.MissingVariables(req, vars); len(missing) > 0 && opts.Prompt {
		in := bufio.NewReader(streams.In)
		prompted := make(map[string]string, len(missing))
		for _, name := range missing {
			value, err := promptForVariable(in, streams.Err, name)
			if err != nil {
				return nil, fmt.Errorf("failed to read input for '%s': %w", name, err)
			}
			prompted[name] = value
		}
		vars = environment.Overlay(vars, prompted)
	}

	result, execErr := app.Executor.ExecuteWith(ctx, req, vars)

	if !opts.NoHistory {
		errMsg := ""
		if execErr != nil {
			errMsg = execErr.Error()
		}
		if err := app.History.Save(requestID, req, result, errMsg); err != nil {
			// Don't fail if history save fails, just warn
			fmt.Fprintf(streams.Err, "Warning: failed to save history: %v\n", err)
		}
	}

	if execErr != nil {
		return nil, execErr
	}

	if opts.Filter != "" || opts.Query != "" {
		filtered, err := filter.Apply(result.Response.Data, opts.Filter, opts.Query)
		if err != nil {
			fmt.Fprintf(streams.Err, "Warning: filter/query error: %v\n", err)
		} else {
			shown := *result
			shown.Response.Data = filtered
			result = &shown
		}
	}

	output, err := formatOutput(result, outputFormat(opts.OutputFormat), opts.ShowFull)
	if err != nil {
		return nil, fmt.Errorf("failed to format output: %w", err)
	}

	if opts.Copy {
		if err := clipboard.WriteAll(output); err != nil {
			fmt.Fprintf(streams.Err, "Warning: failed to copy to clipboard: %v\n", err)
		} else {
			fmt.Fprintln(streams.Err, "Response copied to clipboard")
		}
	}

	if opts.SavePath != "" {
		if err := os.WriteFile(opts.SavePath, []byte(output), config.FilePermissions); err != nil {
			return nil, fmt.Errorf("failed to save response: %w", err)
		}
		fmt.Fprintf(streams.Err, "Response saved to %s\n", opts.SavePath)
	} else {
		fmt.Fprint(streams.Out, output)
	}

	return result, nil
}

// composeForSend layers the variables for one send: the stored selection
// amended by temporary selections, then the env file, then -e values
func composeForSend(app *App, opts SendOptions) (environment.VarMap, error) {
	var extra types.Selection
	for _, pair := range opts.Selections {
		dimension, variant, ok := strings.Cut(pair, "=")
		if !ok || dimension == "" || variant == "" {
			return nil, fmt.Errorf("invalid selection %q, expected dimension=variant", pair)
		}
		dimID, variantID, err := app.Session.ResolveSelection(dimension, variant)
		if err != nil {
			return nil, err
		}
		extra = extra.Set(dimID, variantID)
	}

	vars := app.Store.Snapshot()
	if len(extra) > 0 {
		vars = app.Session.ComposeWith(extra)
	}

	if opts.EnvFile != "" {
		fileVars, err := parser.LoadEnvFile(opts.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
		vars = environment.Overlay(vars, fileVars)
	}

	cliVars, err := parseAssignments(opts.ExtraVars)
	if err != nil {
		return nil, err
	}
	return environment.Overlay(vars, cliVars), nil
}

// outputFormat falls back to body when stdout is piped and text otherwise
func outputFormat(format string) string {
	if format != "" {
		return format
	}
	stat, err := os.Stdout.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		return "body"
	}
	return "text"
}
