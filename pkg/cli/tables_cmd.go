package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tablesheet/pkg/cli/client"
)

// tableView mirrors the server's table representation.
type tableView struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	OwnerID       string       `json:"ownerId"`
	Columns       []columnView `json:"columns"`
	CustomColumns []columnView `json:"customColumns"`
	CreatedAt     time.Time    `json:"createdAt"`
}

type columnView struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type streamMessage struct {
	Event   string            `json:"event"`
	TableID string            `json:"tableId"`
	Rows    []json.RawMessage `json:"rows"`
}

func (t tableView) columnNames() []string {
	names := make([]string, 0, len(t.Columns)+len(t.CustomColumns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	for _, c := range t.CustomColumns {
		names = append(names, c.Name)
	}
	return names
}

func tablePath(id string) string {
	return "/tables/" + url.PathEscape(id)
}

func newTablesCmd(api *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tables",
		Aliases: []string{"table"},
		Short:   "Manage tables",
	}

	cmd.AddCommand(newTablesListCmd(api))
	cmd.AddCommand(newTablesGetCmd(api))
	cmd.AddCommand(newTablesCreateCmd(api))
	cmd.AddCommand(newTablesDataCmd(api))
	cmd.AddCommand(newTablesAddColumnCmd(api))
	cmd.AddCommand(newTablesWatchCmd(api))
	return cmd
}

func newTablesListCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tables []tableView
			if err := api.DoJSON(cmd.Context(), http.MethodGet, "/tables", nil, &tables); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(cmd.OutOrStdout(), tables)
			}
			rows := make([][]string, len(tables))
			for i, t := range tables {
				rows[i] = []string{t.ID, t.Name, strings.Join(t.columnNames(), ", ")}
			}
			client.PrintTable(cmd.OutOrStdout(), []string{"id", "name", "columns"}, rows)
			return nil
		},
	}
}

func newTablesGetCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table-id>",
		Short: "Show a table definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t tableView
			if err := api.DoJSON(cmd.Context(), http.MethodGet, tablePath(args[0]), nil, &t); err != nil {
				return err
			}
			return printTable(cmd, t)
		},
	}
}

func newTablesCreateCmd(api *client.Client) *cobra.Command {
	var columns []string

	cmd := &cobra.Command{
		Use:     "create <name>",
		Short:   "Create a table over spreadsheet columns",
		Example: `  tablesheet tables create Contacts --column Name --column Email --column Birthday:date`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols, err := parseColumnSpecs(columns)
			if err != nil {
				return err
			}
			body := map[string]interface{}{"name": args[0], "columns": cols}
			var t tableView
			if err := api.DoJSON(cmd.Context(), http.MethodPost, "/tables", body, &t); err != nil {
				return err
			}
			return printTable(cmd, t)
		},
	}

	cmd.Flags().StringArrayVarP(&columns, "column", "c", nil, "Column as name[:text|date]; repeatable")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func newTablesDataCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "data <table-id>",
		Short: "Print the table's rows projected from the spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []json.RawMessage
			if err := api.DoJSON(cmd.Context(), http.MethodGet, tablePath(args[0])+"/data", nil, &rows); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return client.PrintJSON(cmd.OutOrStdout(), rows)
			}
			var t tableView
			if err := api.DoJSON(cmd.Context(), http.MethodGet, tablePath(args[0]), nil, &t); err != nil {
				return err
			}
			return printRows(cmd, t.columnNames(), rows)
		},
	}
}

// columnTypeValue is a flag restricted to the server's column types.
type columnTypeValue string

var _ pflag.Value = (*columnTypeValue)(nil)

func (v *columnTypeValue) String() string { return string(*v) }

func (v *columnTypeValue) Set(s string) error {
	switch s {
	case "text", "date":
		*v = columnTypeValue(s)
		return nil
	}
	return fmt.Errorf("must be one of text, date")
}

func (v *columnTypeValue) Type() string { return "text|date" }

func newTablesAddColumnCmd(api *client.Client) *cobra.Command {
	colType := columnTypeValue("text")

	cmd := &cobra.Command{
		Use:   "add-column <table-id> <name>",
		Short: "Append a custom column to a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := columnView{Name: args[1], Type: string(colType)}
			var t tableView
			if err := api.DoJSON(cmd.Context(), http.MethodPost, tablePath(args[0])+"/columns", body, &t); err != nil {
				return err
			}
			return printTable(cmd, t)
		},
	}

	cmd.Flags().VarP(&colType, "type", "t", "Column type")
	_ = cmd.RegisterFlagCompletionFunc("type", cobra.FixedCompletions([]string{"text", "date"}, cobra.ShellCompDirectiveNoFileComp))
	return cmd
}

func newTablesWatchCmd(api *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <table-id>",
		Short: "Stream row updates for a table until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return api.Watch(ctx, args[0], func(raw json.RawMessage) error {
				if getOutputFormat(cmd) == "json" {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), string(raw))
					return err
				}
				var msg streamMessage
				if err := json.Unmarshal(raw, &msg); err != nil {
					return fmt.Errorf("decode stream message: %w", err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s: %d rows\n",
					time.Now().Format(time.TimeOnly), msg.Event, msg.TableID, len(msg.Rows))
				return err
			})
		},
	}
}

// parseColumnSpecs turns name[:type] specs into request columns. An omitted
// type is left empty for the server to default.
func parseColumnSpecs(specs []string) ([]columnView, error) {
	cols := make([]columnView, 0, len(specs))
	for _, spec := range specs {
		name, typ, _ := strings.Cut(spec, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid column %q: name is required", spec)
		}
		cols = append(cols, columnView{Name: name, Type: strings.TrimSpace(typ)})
	}
	return cols, nil
}

func printTable(cmd *cobra.Command, t tableView) error {
	if getOutputFormat(cmd) == "json" {
		return client.PrintJSON(cmd.OutOrStdout(), t)
	}
	rows := make([][]string, 0, len(t.Columns)+len(t.CustomColumns))
	for _, c := range t.Columns {
		rows = append(rows, []string{c.Name, c.Type, "base"})
	}
	for _, c := range t.CustomColumns {
		rows = append(rows, []string{c.Name, c.Type, "custom"})
	}
	out := cmd.OutOrStdout()
	client.PrintDetail(out, map[string]interface{}{
		"id":      t.ID,
		"name":    t.Name,
		"owner":   t.OwnerID,
		"created": t.CreatedAt.Format(time.RFC3339),
	})
	_, _ = fmt.Fprintln(out)
	client.PrintTable(out, []string{"column", "type", "kind"}, rows)
	return nil
}

func printRows(cmd *cobra.Command, columns []string, raw []json.RawMessage) error {
	items := make([]interface{}, 0, len(raw))
	for _, r := range raw {
		var m map[string]interface{}
		if err := json.Unmarshal(r, &m); err != nil {
			return fmt.Errorf("decode row: %w", err)
		}
		items = append(items, m)
	}
	client.PrintTable(cmd.OutOrStdout(), columns, client.ExtractRows(items, columns))
	return nil
}
