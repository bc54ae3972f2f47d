package cmd

import (
	"fmt"
	"os"

	"github.com/ghostcap/ghostcap/cmd/fabricate"
	"github.com/ghostcap/ghostcap/cmd/mirror"
	"github.com/ghostcap/ghostcap/internal/pkg/logger"
	"github.com/ghostcap/ghostcap/internal/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "ghostcap",
	Short:   "ghostcap fabricates packet traces",
	Long:    `ghostcap fabricates legally-formed TCP packet traces from intercepted payload bytes, writing them to pcap capture files or mirroring them onto a live segment.`,
	Version: version.GetFullVersion(),
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func addSubCommandPalettes() {
	rootCmd.AddCommand(fabricate.FabricateCmd)
	rootCmd.AddCommand(mirror.MirrorCmd)
}

func init() {
	cobra.OnInitialize(initConfig)

	addSubCommandPalettes()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ghostcap.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ghostcap")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	logger.SetLevel(viper.GetString("log_level"))
}
