package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/godspeedsystems/ingestor-sdk/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "ingestor",
	Short: "Ingestion Lifecycle Server",
	Long:  "A server that manages ingestion tasks across manual, cron, and webhook triggers and orchestrates their source-transform-destination pipelines",
}

func init() {
	rootCmd.AddCommand(cmd.ServeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
