package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cloudtally",
	Short: "cloudtally: OpenStack inventory and cost attribution",
	Long:  "cloudtally authenticates against an OpenStack cloud, lists its compute, network, storage and image resources, and attributes an hourly cost to every instance.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/cloudtally.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
