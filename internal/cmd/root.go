package cmd

import (
	"context"
	"os"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/namelens/ratethrottle/internal/config"
	"github.com/namelens/ratethrottle/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	timeScale float64

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Client side throttling for rate limited HTTP APIs",
	Long: `ratethrottle paces many concurrent clients sharing one request quota.

It ships a toy rate limited API server, a load harness that drives workers
through the throttle strategies, and tools to inspect the results.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. Server mode will initialize proper telemetry later.
	observability.DisableGlobalTelemetry()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/ratethrottle/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().Float64Var(&timeScale, "time-scale", 1, "simulated seconds per wall second")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("time_scale", rootCmd.PersistentFlags().Lookup("time-scale"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if appConfigDir := gfconfig.GetAppConfigDir(config.AppName); appConfigDir != "" {
			viper.AddConfigPath(appConfigDir)
			viper.SetConfigName("config")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Could not find home directory", err)
			}
			viper.AddConfigPath(home)
			viper.SetConfigName("." + config.AppName)
		}

		// Also search in current directory
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok || cfgFile == "" {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	} else {
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	}
}

// loadConfig resolves the effective configuration. Environment overrides
// are applied by config.Load.
func loadConfig(ctx context.Context, overrides ...map[string]any) (*config.Config, error) {
	return config.Load(ctx, viper.GetViper(), overrides...)
}
