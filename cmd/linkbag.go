// Package cmd is the linkbag command line.
package cmd

import (
	goflag "flag"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leftmike/linkbag/config"
	"github.com/leftmike/linkbag/linkbag"
)

var (
	linkbagCmd = &cobra.Command{
		Use:               "linkbag",
		Short:             "A transactional link collection store",
		Long:              "Linkbag stores multi-valued links between records in a versioned store.",
		PersistentPreRunE: linkbagPreRun,
		PersistentPostRun: linkbagPostRun,
		SilenceUsage:      true,
	}

	logStderr = false
	logWriter io.WriteCloser

	configFile = "linkbag.hcl"
	noConfig   = false

	cfg = config.NewConfig(goflag.NewFlagSet("linkbag", goflag.ContinueOnError))

	logFile = cfg.Var(new(string), "log-file").Usage("`file` to use for logging").
		Env("LINKBAG_LOG_FILE").String("linkbag.log")

	logLevel = cfg.Var(new(string), "log-level").
		Usage("log level: trace, debug, info, warn, error, fatal, or panic").
		Env("LINKBAG_LOG_LEVEL").String("info")

	counterMax = cfg.Var(new(int), "counter-max").
		Usage("maximum multiplicity of a member").
		Env("LINKBAG_COUNTER_MAX").Int(linkbag.DefaultMaxCounter)

	embeddedToTree = cfg.Var(new(int), "embedded-to-tree").
		Usage("convert embedded bags with more members to tree-backed; -1 is never").
		Env("LINKBAG_EMBEDDED_TO_TREE").Int(40)

	treeToEmbedded = cfg.Var(new(int), "tree-to-embedded").
		Usage("convert tree-backed bags with fewer members to embedded; -1 is never").
		Env("LINKBAG_TREE_TO_EMBEDDED").Int(-1)

	container = cfg.Var(new(string), "container").
		Usage("container for pending changes: array or tree").
		Env("LINKBAG_CONTAINER").Choices("array", "tree").String("array")

	store = cfg.Var(new(string), "store").
		Usage("store to use: btree, badger, bbolt, or pebble").
		Env("LINKBAG_STORE").Choices("btree", "badger", "bbolt", "pebble").
		String("bbolt")

	dataDir = cfg.Var(new(string), "data").Usage("`directory` containing the store").
		Env("LINKBAG_DATA").String("testdata")
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	initFlags(linkbagCmd.PersistentFlags())
}

func initFlags(fs *pflag.FlagSet) {
	fs.AddGoFlagSet(cfg.FlagSet())

	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")
}

func Execute() error {
	return linkbagCmd.Execute()
}

func loadConfig(required bool) error {
	f, err := os.Open(configFile)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return err
	}
	defer f.Close()

	return cfg.Load(f)
}

func linkbagPreRun(cmd *cobra.Command, args []string) error {
	if configFile != "" && !noConfig {
		err := loadConfig(cmd.Flags().Changed("config-file"))
		if err != nil {
			return fmt.Errorf("linkbag: %s", err)
		}
	}
	err := cfg.Env()
	if err != nil {
		return fmt.Errorf("linkbag: %s", err)
	}

	if !logStderr && *logFile != "" {
		logWriter, err = os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("linkbag: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(*logLevel)
	if err != nil {
		return fmt.Errorf("linkbag: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("linkbag starting")
	return nil
}

func linkbagPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("linkbag done")

	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}
}
