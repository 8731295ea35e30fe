package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var policyPaths []string

	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a topology without writing artifacts",
		Long: `Load, merge and validate the configuration document, then run the full
compile pipeline and the policy gate. Nothing is written to disk, making
this safe to run against production topologies from CI.`,
		Example: `  # Check a topology compiles cleanly
  dnsb validate topology.yaml

  # Check against additional policies
  dnsb validate topology.yaml --policy ./policies`,
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
			if err := enforcePolicies(cmd.Context(), plan, policyPaths); err != nil {
				return err
			}
			log.Info().Str("project", plan.Project).Int("services", len(plan.Order)).
				Msg("Configuration is valid")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy files or directories (.rego, .json)")

	return cmd
}
