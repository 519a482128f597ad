package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/law-makers/marketscrape/internal/extract"
	"github.com/law-makers/marketscrape/internal/ui"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List and print extraction schemas",
	Long: `Built-in schemas describe where each field is read from. Print one as
YAML to start a custom schema for --schema.`,
	Annotations: map[string]string{annotationNoApp: "true"},
}

var schemaListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List the built-in schemas",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoApp: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		for _, name := range extract.PresetNames() {
			s, err := extract.Preset(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %s %s %s\n", ui.Name(fmt.Sprintf("%-10s", name)), s.URL,
				ui.Info(fmt.Sprintf("(%d fields)", len(s.Fields))))
		}
		return nil
	},
}

var schemaShowCmd = &cobra.Command{
	Use:         "show <name|file>",
	Short:       "Print a schema as YAML",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationNoApp: "true"},
	Example: `  marketscrape schema show protocols > protocols.yaml
  marketscrape schema show ./protocols.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := extract.Preset(args[0])
		if err != nil {
			// not a preset, try a file
			var ferr error
			if s, ferr = extract.LoadSchema(args[0]); ferr != nil {
				return fmt.Errorf("%w; %w", err, ferr)
			}
		}
		data, err := s.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	schemaCmd.AddCommand(schemaListCmd, schemaShowCmd)
	rootCmd.AddCommand(schemaCmd)
}
