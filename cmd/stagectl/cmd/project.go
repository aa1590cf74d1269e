package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var projectUserID string

// projectCmd represents the project command group
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project inspection commands",
	Long: `Commands for inspecting Stagewise projects directly in the
database.

Examples:
  # List a user's projects
  stagectl project list --user <user-id>`,
}

// projectListCmd lists a user's projects
var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		if projectUserID == "" {
			return fmt.Errorf("--user is required")
		}

		ctx := context.Background()
		store, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer store.Close(ctx)

		projects, err := store.Projects().ListForUser(ctx, projectUserID)
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}

		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(projects, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("\n%-36s  %-14s  %-30s  %-10s  %-7s  %s\n",
			"ID", "CODE", "NAME", "STATUS", "MEMBERS", "STAGES")
		fmt.Println(strings.Repeat("-", 110))

		for _, p := range projects {
			fmt.Printf("%-36s  %-14s  %-30s  %-10s  %-7d  %d\n",
				p.ID, p.Code, p.Name, p.Status, len(p.Members), len(p.StageIDs))
		}
		fmt.Printf("\nTotal: %d project(s)\n", len(projects))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd)

	projectListCmd.Flags().StringVar(&projectUserID, "user", "", "user id whose projects to list (required)")
	projectListCmd.MarkFlagRequired("user")
}
