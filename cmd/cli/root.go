// Package cli provides the command-line interface of pingscan.
// This package implements the Cobra-based CLI with commands for one-off
// scans, pings, the API server and version information.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/pingscan/internal/api/handlers"
	"github.com/anstrom/pingscan/internal/config"
	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/probe"
)

// envPrefix prefixes environment overrides, e.g. PINGSCAN_SCANNING_TIMEOUT.
const envPrefix = "PINGSCAN"

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// newRegistry builds the probers used by scan, ping and serve.
var newRegistry = probe.DefaultRegistry

// overrideKeys are the configuration keys that environment variables and
// flags may override on top of the config file.
var overrideKeys = []string{
	"scanning.timeout",
	"scanning.workers",
	"scanning.max_addresses",
	"api.enabled",
	"api.listen_addr",
	"api.port",
	"logging.level",
	"logging.format",
	"logging.output",
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pingscan",
	Short: "Concurrent ICMP, TCP and UDP reachability scanner",
	Long: `pingscan probes hosts over ICMP, TCP and UDP concurrently and reports
which hosts are up, which ports are open and which are closed.

It runs one-off scans from the command line, or serves an HTTP API with
queued scans, live progress streams and cron-scheduled scans.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to process exit codes: 2 for bad input, 130 for an
// interrupted scan, 1 otherwise.
func exitCode(err error) int {
	switch {
	case errors.IsCode(err, errors.CodeCanceled):
		return 130
	case errors.IsFatal(err):
		return 2
	default:
		return 1
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pingscan.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")

	bindFlag(rootCmd, "logging.level", "log-level")
	bindFlag(rootCmd, "logging.format", "log-format")
}

// bindFlag binds a persistent or local flag of cmd to a viper key.
func bindFlag(cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	if err := viper.BindPFlag(key, f); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", flag, err)
	}
}

// initConfig locates the config file and wires environment overrides.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("pingscan")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range overrideKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the config file, applies environment and flag overrides,
// validates the result and sets up logging.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, errors.WrapConfigError(errors.CodeConfiguration, "cannot read config file "+cfgFile, err)
		}
	}

	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}

	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	initLogging(cfg)
	return cfg, nil
}

// applyOverrides copies values set through viper (env or flags) into cfg.
func applyOverrides(cfg *config.Config) {
	if viper.IsSet("scanning.timeout") {
		cfg.Scanning.Timeout = viper.GetDuration("scanning.timeout")
	}
	if viper.IsSet("scanning.workers") {
		cfg.Scanning.Workers = viper.GetInt("scanning.workers")
	}
	if viper.IsSet("scanning.max_addresses") {
		cfg.Scanning.MaxAddresses = viper.GetInt("scanning.max_addresses")
	}
	if viper.IsSet("api.enabled") {
		cfg.API.Enabled = viper.GetBool("api.enabled")
	}
	if viper.IsSet("api.listen_addr") {
		cfg.API.ListenAddr = viper.GetString("api.listen_addr")
	}
	if viper.IsSet("api.port") {
		cfg.API.Port = viper.GetInt("api.port")
	}
	if v := viper.GetString("logging.level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("logging.format"); v != "" {
		cfg.Logging.Format = v
	}
	if v := viper.GetString("logging.output"); v != "" {
		cfg.Logging.Output = v
	}
	if verbose {
		cfg.Logging.Level = string(logging.LevelDebug)
	}
}

// initLogging initializes structured logging based on configuration.
func initLogging(cfg *config.Config) {
	logConfig := cfg.LoggingConfig()
	logConfig.AddSource = logConfig.Level == logging.LevelDebug

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Debug("Structured logging initialized", "level", logConfig.Level, "format", logConfig.Format)
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
	handlers.SetBuildInfo(v, c, bt)
}
