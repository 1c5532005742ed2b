package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/convstore/internal/schema"
)

// SchemaCheckResult is the JSON payload of "schema check".
type SchemaCheckResult struct {
	Valid  bool     `json:"valid"`
	Tables []string `json:"tables,omitempty"`
}

// NewSchemaCommand creates the schema command and its subcommands.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the table schema",
		Long: `The table layout is declared in CUE. "schema check" compiles a schema
document against the built-in definitions; "schema sql" renders the DDL for
either shape of the messages table.`,
	}

	cmd.AddCommand(newSchemaCheckCommand(rootOpts))
	cmd.AddCommand(newSchemaSQLCommand(rootOpts))
	return cmd
}

func newSchemaCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "check <schema.cue>",
		Short:         "Compile and validate a schema document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			desc, err := loadDescriptor(args[0])
			if err != nil {
				var nf *notFoundError
				if errors.As(err, &nf) {
					if outErr := out.Error(ErrCodeNotFound, err.Error(), nil); outErr != nil {
						return outErr
					}
					return WrapExitError(ExitCommandError, "schema not found", err)
				}
				var details any
				var ce *schema.CompileError
				if errors.As(err, &ce) && ce.Pos != "" {
					details = map[string]string{"pos": ce.Pos}
				}
				if outErr := out.Error(ErrCodeSchemaFailed, err.Error(), details); outErr != nil {
					return outErr
				}
				return WrapExitError(ExitFailure, "schema invalid", err)
			}

			result := SchemaCheckResult{Valid: true}
			for _, t := range desc.Tables {
				result.Tables = append(result.Tables, t.Name)
			}
			if out.Format == "json" {
				return out.Success(result)
			}
			fmt.Fprintf(out.Writer, "✓ %s: %d tables\n", args[0], len(result.Tables))
			for _, name := range result.Tables {
				out.VerboseLog("  %s", name)
			}
			return nil
		},
	}
}

func newSchemaSQLCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flavor string
		shape  string
		file   string
	)

	cmd := &cobra.Command{
		Use:           "sql",
		Short:         "Print CREATE TABLE statements",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			f, err := schema.ParseFlavor(flavor)
			if err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}

			desc := schema.MustDefault()
			if file != "" {
				if desc, err = loadDescriptor(file); err != nil {
					if outErr := out.Error(ErrCodeSchemaFailed, err.Error(), nil); outErr != nil {
						return outErr
					}
					return WrapExitError(ExitFailure, "schema invalid", err)
				}
			}

			stmts, err := renderShape(desc, f, shape)
			if err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}

			if out.Format == "json" {
				return out.Success(map[string]any{"flavor": f, "shape": shape, "statements": stmts})
			}
			for _, s := range stmts {
				fmt.Fprintf(out.Writer, "%s;\n\n", s)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flavor, "flavor", string(schema.SQLite), "SQL dialect: sqlite|postgres")
	cmd.Flags().StringVar(&shape, "shape", "legacy", "messages shape: legacy|grouped")
	cmd.Flags().StringVar(&file, "file", "", "schema document (defaults to the built-in schema)")
	return cmd
}

type notFoundError struct{ path string }

func (e *notFoundError) Error() string { return fmt.Sprintf("schema file not found: %s", e.path) }

func loadDescriptor(path string) (*schema.Descriptor, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &notFoundError{path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return schema.Compile(string(src))
}

// renderShape renders the whole schema with messages in the named shape.
// The legacy shape has no conversations table.
func renderShape(desc *schema.Descriptor, f schema.Flavor, shape string) ([]string, error) {
	switch shape {
	case "legacy":
		return desc.BaselineSQL(f), nil
	case "grouped":
		var stmts []string
		for _, t := range desc.Tables {
			if t.Name == schema.Messages {
				t = t.WithPhases(schema.PhaseGrouped)
			}
			stmts = append(stmts, t.CreateSQL(f, schema.RenderOptions{IfNotExists: true}))
		}
		return stmts, nil
	default:
		return nil, fmt.Errorf("unknown shape %q (want legacy or grouped)", shape)
	}
}
