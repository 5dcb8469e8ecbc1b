// Package cmd defines the ragbot command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ragbot",
	Short: "ragbot - retrieval-augmented chat session server",
	Long: `ragbot serves document-grounded chat sessions over HTTP.

Each session owns an ingested document corpus and a durable transcript;
replies are generated by retrieving relevant passages from the corpus
and streaming the model output to the caller.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}
