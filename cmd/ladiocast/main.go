package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "ladiocast"
)

var (
	version = "1.0.0"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Live microphone to MP3 streaming broadcaster",
	Long: `ladiocast captures audio from a local input, encodes it to MP3 and
streams it to an ICE/SOURCE streaming server with automatic reconnect.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s v%s\n", serviceName, version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "path to configuration file")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServersCmd())
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
