package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kie-chi/dnsbuilder/pkg/builder"
)

func newGraphCommand() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "graph <config>",
		Short: "Emit the topology as a DOT graph",
		Long: `Compile the configuration and emit the service topology in Graphviz DOT
format: one node per service, edges for behavior targets (forward, stub,
hint, master delegations).`,
		Example: `  # Print the graph to stdout
  dnsb graph topology.yaml

  # Render directly with graphviz
  dnsb graph topology.yaml | dot -Tsvg -o topology.svg

  # Write to a file
  dnsb graph topology.yaml --out topology.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tel, err := newTelemetry(false)
			if err != nil {
				return err
			}
			defer tel.Shutdown(cmd.Context())

			fs := newRouter()
			doc, err := loadDocument(fs, args[0])
			if err != nil {
				return err
			}
			plan, err := compile(cmd.Context(), fs, doc, tel)
			if err != nil {
				return err
			}

			dot := builder.TopologyDOT(plan, tel.Logger.NewComponentLogger("graph"))
			if outFile == "" {
				fmt.Fprint(cmd.OutOrStdout(), dot)
				return nil
			}
			if err := os.WriteFile(outFile, []byte(dot), 0o644); err != nil {
				return fmt.Errorf("failed to write graph: %w", err)
			}
			log.Info().Str("out", outFile).Msg("Wrote topology graph")
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output DOT file (default stdout)")

	return cmd
}
