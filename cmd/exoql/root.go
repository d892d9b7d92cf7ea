package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/exocortex/exoql/internal/config"
	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/engine"
	"github.com/exocortex/exoql/pkg/store"
)

// app carries what the persistent flags resolve to.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	data   []string
}

// NewRootCmd creates the root exoql command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "exoql",
		Short:         "exoql: embeddable RDF triple store and SPARQL engine",
		Long:          "exoql keeps RDF triples in memory and answers SPARQL 1.1 queries over them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("log-level", "", "log level (overrides config)")
	root.PersistentFlags().StringSliceVarP(&a.data, "data", "d", nil, "N-Triples or N-Quads files to preload")

	root.AddCommand(
		newQueryCmd(a),
		newAnalyzeCmd(a),
		newLoadCmd(a),
		newServeCmd(a),
		newDemoCmd(a),
		newVersionCmd(),
	)

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
		if errs := cfg.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}
	}

	a.cfg = cfg
	a.logger = cfg.Logger()
	a.logger.SetOutput(cmd.ErrOrStderr())
	return nil
}

// newStore builds a store and loads every --data file into it.
func (a *app) newStore() (*store.TripleStore, error) {
	s := store.New(store.WithLogger(a.logger), store.WithCacheSize(a.cfg.Store.CacheSize))
	for _, path := range a.data {
		quads, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := s.AddQuads(quads); err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreInvalidInput, "load data", errors.Field("path", path))
		}
		a.logger.WithFields(logrus.Fields{"path": path, "triples": len(quads)}).Info("exoql: data loaded")
	}
	return s, nil
}

func (a *app) newEngine(s *store.TripleStore) *engine.Engine {
	return engine.New(s,
		engine.WithLogger(a.logger),
		engine.WithThresholds(a.cfg.Thresholds()),
		engine.WithAdmission(a.cfg.Query.Admission),
		engine.WithOptimize(a.cfg.Query.Optimize))
}

// readFile parses a data file, choosing N-Quads for .nq files.
func readFile(path string) ([]*rdf.Quad, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreInvalidInput, "open data file", errors.Field("path", path))
	}
	defer f.Close()

	contentType := "application/n-triples"
	if strings.EqualFold(filepath.Ext(path), ".nq") {
		contentType = "application/n-quads"
	}
	reader, err := rdf.NewReader(contentType, nil)
	if err != nil {
		return nil, err
	}
	quads, err := reader.Read(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNTriplesParseInvalidSyntax, "parse data file", errors.Field("path", path))
	}
	return quads, nil
}
