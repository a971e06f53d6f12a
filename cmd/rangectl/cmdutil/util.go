// Package cmdutil provides shared utilities for rangectl commands.
package cmdutil

import (
	"fmt"
	"io"

	"github.com/rangelabs/rangecloud/internal/cli/credentials"
	"github.com/rangelabs/rangecloud/internal/cli/output"
	"github.com/rangelabs/rangecloud/pkg/apiclient"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL  string
	Executor   string
	Token      string
	ClientCert string
	ClientKey  string
	CACert     string
	Insecure   bool
	Output     string
	Verbose    bool
}

// GetClient returns an API client configured from the flags, falling
// back to the stored context for anything not overridden.
func GetClient() (*apiclient.Client, error) {
	cfg := apiclient.Config{
		BaseURL:    Flags.ServerURL,
		Executor:   Flags.Executor,
		Token:      Flags.Token,
		ClientCert: Flags.ClientCert,
		ClientKey:  Flags.ClientKey,
		CACert:     Flags.CACert,
		Insecure:   Flags.Insecure,
	}

	if cfg.BaseURL == "" {
		store, err := credentials.NewStore()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize context store: %w", err)
		}
		ctx, err := store.GetCurrentContext()
		if err != nil {
			return nil, fmt.Errorf("no server URL given and no saved context\n\n" +
				"Save one first:\n" +
				"  rangectl context set default --server https://localhost:8443")
		}
		cfg.BaseURL = ctx.ServerURL
		if cfg.Executor == "" {
			cfg.Executor = ctx.Executor
		}
		if cfg.ClientCert == "" {
			cfg.ClientCert = ctx.ClientCert
			cfg.ClientKey = ctx.ClientKey
		}
		if cfg.CACert == "" {
			cfg.CACert = ctx.CACert
		}
		if !cfg.Insecure {
			cfg.Insecure = ctx.Insecure
		}
	}

	return apiclient.New(cfg)
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the selected format. For table format it
// displays emptyMsg when there is nothing to show.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, err := fmt.Fprintln(w, emptyMsg)
			return err
		}
		return output.PrintTable(w, tableRenderer)
	}
}
