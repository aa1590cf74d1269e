// Package cmd contains the CLI commands for stagectl.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calm-green-heron/stagewise/internal/storage"
)

var (
	// Used for flags
	verbose  bool
	output   string
	mongoURI string
	database string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stagectl",
	Short: "Stagewise - Project collaboration admin tool",
	Long: `stagectl manages a Stagewise deployment directly against its
MongoDB database, outside of the web API.

Examples:
  # List all users
  stagectl user list

  # Create a user
  stagectl user create --username ana --email ana@example.com --name "Ana Ruiz"

  # List all projects
  stagectl project list`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&mongoURI, "uri", "", "MongoDB URI (default: $STAGEWISE_MONGO_URI or mongodb://localhost:27017)")
	rootCmd.PersistentFlags().StringVar(&database, "db", "stagewise", "MongoDB database name")
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// openStorage connects to MongoDB using the flag or environment URI.
func openStorage(ctx context.Context) (*storage.MongoStorage, error) {
	uri := mongoURI
	if uri == "" {
		uri = os.Getenv("STAGEWISE_MONGO_URI")
	}
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	store := storage.NewMongoStorage(uri, database)
	if err := store.Open(ctx); err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	return store, nil
}
