// Package cli implements the tablesheet command-line client.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tablesheet/pkg/cli/client"
)

var (
	version = "dev"
	commit  = "none"
)

const defaultHost = "http://localhost:8080"

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]interface{}{
				"error": err.Error(),
			}
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				errObj["http_status"] = apiErr.HTTPStatus
				errObj["code"] = apiErr.Code
			}
			_ = client.PrintJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		host    string
		token   string
		output  string
		profile string
	)

	api := client.NewClient(defaultHost, "")

	rootCmd := &cobra.Command{
		Use:           "tablesheet",
		Short:         "Sheet-backed table manager CLI",
		Long:          "Command-line interface for the tablesheet API: define tables over a shared spreadsheet, add columns and read projected rows.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadOrEmptyConfig()
			p, err := cfg.ActiveProfile(profile)
			if err != nil {
				return err
			}

			// flag > env > profile > default
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("TABLESHEET_HOST"); v != "" {
					host = v
				} else if p.Host != "" {
					host = p.Host
				}
			}
			if !cmd.Flags().Changed("token") {
				if v := os.Getenv("TABLESHEET_TOKEN"); v != "" {
					token = v
				} else if p.Token != "" {
					token = p.Token
				}
			}
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("TABLESHEET_OUTPUT"); v != "" {
					output = v
				} else if p.Output != "" {
					output = p.Output
				}
			}

			if err := validateOutputFormat(output); err != nil {
				return err
			}
			if err := validateHostURL(host); err != nil {
				return err
			}
			api.BaseURL = host
			api.Token = token
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", defaultHost, "API host URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "JWT bearer token")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Config profile to use")

	rootCmd.AddCommand(newTablesCmd(api))
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
