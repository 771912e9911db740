package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nerdemo/internal/config"
	"nerdemo/internal/logging"
)

// app carries state resolved once in the root command's pre-run.
type app struct {
	cfgFile  string
	logLevel string
	cfg      config.Config
	logger   *zap.Logger
}

func (a *app) setup() error {
	path := a.cfgFile
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(a.logLevel))
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Logging)
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "nerdemo",
		Short: "Named entity recognition demo service",
		Long: `nerdemo runs a CoNLL-2003 token classification model over free text and
shows the recognized entities with their confidence scores.

Examples:
  nerdemo serve                            # Start the web app on :8501
  nerdemo annotate "Elon Musk is the CEO of Tesla."
  nerdemo model download                   # Install the recommended model from model.registry`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ~/.nerdemo/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug|info|warn|error)")

	root.AddCommand(
		newServeCmd(a),
		newAnnotateCmd(a),
		newLabelsCmd(a),
		newModelCmd(a),
		newStatsCmd(a),
		newAboutCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
