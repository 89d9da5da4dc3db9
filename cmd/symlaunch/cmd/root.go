package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/minimario/symlaunch/internal/config"
	"github.com/minimario/symlaunch/pkg/logging"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string
	logJSON      bool

	cfg *config.Config
	log *logging.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "symlaunch",
	Short: "Staggered multi-GPU launcher for Sym-NCO training runs",
	Long: `symlaunch starts Sym-NCO training processes as detached background
tasks, one per GPU, with a stagger between consecutive starts so each run
claims its device before the next begins.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.symlaunch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit launcher logs as JSON")
}

// initConfig resolves configuration before any command runs
func initConfig() {
	// Local .env entries (API keys, CUDA paths) feed the child environment
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log = logging.New(logging.ParseLevel(level), logJSON || cfg.LogJSON)
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
