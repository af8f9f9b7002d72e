package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wangchj/inflight-sub000/internal/cli"
	"github.com/wangchj/inflight-sub000/internal/server"
)

var (
	version = "0.1.0"
)

// exitError carries a process exit code without printing another message
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if exit, ok := err.(*exitError); ok {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inflight",
	Short: "inflight - stored HTTP requests with composable variables",
	Long: `inflight sends stored HTTP requests. Request templates reference
{{variables}} that come from the variants selected in each dimension.

Examples:
  inflight tree                              # List stored requests
  inflight select Stage Beta                 # Select a variant
  inflight send "Users/Get user"             # Send a request by path
  inflight send get-user -s Stage=Prod       # Override a selection for one send
  inflight send get-user -e userId=123       # Provide a variable
  inflight import api.har --folder Imported  # Import requests from a file
  inflight serve                             # Start the local API`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var sendCmd = &cobra.Command{
	Use:   "send <request>",
	Short: "Resolve, sign and send a stored request",
	Long: `Send a stored request by id, folder path or name.

When stdin is a terminal you'll be prompted for any missing variables.
The command exits with status 1 when the response status is 400 or above.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			result, err := cli.Send(cmd.Context(), app, cli.SendOptions{
				Request:      args[0],
				Selections:   flagSelections,
				ExtraVars:    flagExtraVars,
				EnvFile:      flagEnvFile,
				BodyOverride: flagBody,
				OutputFormat: flagOutput,
				Filter:       flagFilter,
				Query:        flagQuery,
				SavePath:     flagSave,
				Copy:         flagCopy,
				ShowFull:     flagFull,
				NoHistory:    flagNoHistory,
				Prompt:       cli.IsInteractive(),
			}, cli.StdIO())
			if err != nil {
				return err
			}
			if result.Response.StatusCode >= 400 {
				return &exitError{code: 1}
			}
			return nil
		})
	},
}

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Print the composed variables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.Vars(app, flagMissing, flagOutput, cli.StdIO())
		})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <dimension> [variant]",
	Short: "Select a variant, or clear the dimension when no variant is given",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		variant := ""
		if len(args) == 2 {
			variant = args[1]
		}
		return withApp(cmd, func(app *cli.App) error {
			return cli.Select(app, args[0], variant, cli.StdIO())
		})
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "List folders and requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.Tree(app, cli.StdIO())
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import requests from .http, .yaml, .json, .jsonc or .har files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.Import(app, args[0], flagFolder, cli.StdIO())
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or clear recent sends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.History(app, flagLimit, flagClear, flagOutput, cli.StdIO())
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [request]",
	Short: "Summarize recorded sends per request",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		return withApp(cmd, func(app *cli.App) error {
			return cli.Stats(app, query, flagOutput, cli.StdIO())
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local API and variable events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withApp(cmd, func(app *cli.App) error {
			addr := app.Settings.Listen
			if flagListen != "" {
				addr = flagListen
			}
			srv := server.New(app.Session, app.Executor, app.History, app.Logger)
			fmt.Fprintf(os.Stderr, "Listening on http://%s\n", addr)
			return server.ListenAndServe(ctx, addr, srv.Router(), app.Logger)
		})
	},
}

// Global flags
var (
	flagProject string
	flagStorage string
	flagDebug   bool
)

// Flags for send
var (
	flagSelections []string
	flagExtraVars  []string
	flagEnvFile    string
	flagBody       string
	flagOutput     string
	flagFilter     string
	flagQuery      string
	flagSave       string
	flagCopy       bool
	flagFull       bool
	flagNoHistory  bool
)

// Flags for the remaining commands
var (
	flagMissing string
	flagFolder  string
	flagLimit   int
	flagClear   bool
	flagListen  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "Project to open (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagStorage, "storage", "", "Document storage (sqlite/json)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	// send flags
	sendCmd.Flags().StringArrayVarP(&flagSelections, "select", "s", []string{}, "Select dimension=variant for this send, can be repeated")
	sendCmd.Flags().StringArrayVarP(&flagExtraVars, "extra-vars", "e", []string{}, "Set variable (key=value), can be repeated")
	sendCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "Load variables from a .env file")
	sendCmd.Flags().StringVarP(&flagBody, "body", "b", "", "Override request body")
	sendCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output format (json/yaml/text/body)")
	sendCmd.Flags().StringVar(&flagFilter, "filter", "", "JMESPath filter applied to the response body")
	sendCmd.Flags().StringVar(&flagQuery, "query", "", "JMESPath query applied after the filter")
	sendCmd.Flags().StringVar(&flagSave, "save", "", "Save output to file")
	sendCmd.Flags().BoolVar(&flagCopy, "copy", false, "Copy the response body to the clipboard")
	sendCmd.Flags().BoolVarP(&flagFull, "full", "f", false, "Show full output (request, status, headers, body)")
	sendCmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Do not record this send in history")

	varsCmd.Flags().StringVar(&flagMissing, "missing", "", "List the variables this request cannot resolve")
	varsCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output format (json/yaml/text)")

	importCmd.Flags().StringVar(&flagFolder, "folder", "", "Create a folder for the imported requests")

	historyCmd.Flags().IntVar(&flagLimit, "limit", 0, "Number of entries to show (default 50)")
	historyCmd.Flags().BoolVar(&flagClear, "clear", false, "Delete all history entries")
	historyCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output format (json/yaml/text)")

	statsCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output format (json/yaml/text)")

	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Address to listen on (default from config)")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(varsCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

// withApp opens the project for one command and flushes it afterwards
func withApp(cmd *cobra.Command, fn func(app *cli.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := cli.Open(ctx, cli.Options{
		Project: flagProject,
		Storage: flagStorage,
		Debug:   flagDebug,
	})
	if err != nil {
		return err
	}

	err = fn(app)
	if closeErr := app.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
