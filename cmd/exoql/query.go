package main

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/exocortex/exoql/pkg/errors"
)

func newQueryCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "query <sparql|->",
		Short: "Run a SPARQL query against the preloaded data",
		Long:  "Run a SPARQL query. Pass - to read the query from standard input.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := queryText(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			s, err := a.newStore()
			if err != nil {
				return err
			}
			resp, err := a.newEngine(s).Query(cmd.Context(), text)
			if err != nil {
				if errors.IsDenied(err) && resp != nil && resp.Report != nil {
					for _, v := range resp.Report.Violations {
						a.logger.WithField("violation", v).Warn("exoql: query denied")
					}
				}
				return err
			}
			a.logger.WithFields(logrus.Fields{
				"query_id": resp.ID.String(),
				"elapsed":  resp.Elapsed,
			}).Debug("exoql: query finished")

			return writeResult(cmd.OutOrStdout(), resp.Result, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json, xml, csv or tsv")
	return cmd
}

func queryText(stdin io.Reader, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeServerRequestInvalid, "read query from stdin")
	}
	return strings.TrimSpace(string(data)), nil
}
