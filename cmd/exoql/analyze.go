package main

import (
	"github.com/spf13/cobra"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/sparql/complexity"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		output string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <sparql|->",
		Short: "Estimate the cost of a query without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := queryText(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			report := complexity.NewAnalyzer(a.cfg.Thresholds()).Analyze(text)
			var data []byte
			switch output {
			case "yaml":
				data, err = report.YAML()
			case "json":
				data, err = report.JSON()
				data = append(data, '\n')
			default:
				return errors.New(errors.CodeConfigValidateInvalidValue, "unknown output format",
					errors.Field("output", output))
			}
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}

			if strict && !report.Allowed {
				return errors.New(errors.CodeSPARQLAdmissionDenied, "query would be denied",
					errors.Field("violations", report.Violations))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "report format: yaml or json")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with an error when the query would be denied")
	return cmd
}
