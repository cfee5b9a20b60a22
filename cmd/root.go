package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/camden-git/faceattendance/config"
)

var (
	// v holds every configuration value; root flags are bound into it
	v       = config.New()
	envFile string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "faceattendance",
	Short:   "Face-recognition attendance service",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnvFile(envFile)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file")
	rootCmd.PersistentFlags().Float64("threshold", 0, "Maximum cosine distance for a match (overrides MATCH_THRESHOLD)")
	rootCmd.PersistentFlags().Bool("debug", false, "Verbose database logging")

	bindFlag(v, "match_threshold", "threshold")
	bindFlag(v, "debug", "debug")
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag, err))
	}
}
