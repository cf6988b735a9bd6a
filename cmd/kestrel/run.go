package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/orchestrator"
	"github.com/kestrelsec/kestrel/internal/tools"
	"github.com/spf13/cobra"
)

var (
	runTarget string
	runMode   string
)

var runCmd = &cobra.Command{
	Use:   "run [description]",
	Short: "Run a task locally and print its report",
	Args:  cobra.ExactArgs(1),
	RunE:  runTask,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the built-in tools",
	RunE:  listTools,
}

func init() {
	runCmd.Flags().StringVar(&runTarget, "target", "", "Target host or domain (required)")
	runCmd.Flags().StringVar(&runMode, "mode", "recon", "Task mode (recon, scan, audit, hardening)")
	runCmd.MarkFlagRequired("target")
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	tools.RegisterDefaults(registry)
	orch := orchestrator.New(registry, cfg)

	result, err := orch.RunTask(cmd.Context(), orchestrator.TaskRequest{
		Description: args[0],
		Target:      runTarget,
		Mode:        runMode,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Task:\t%s\n", result.TaskID)
	fmt.Fprintf(w, "Status:\t%s\n", result.Status)
	fmt.Fprintf(w, "Findings:\t%d\n", len(result.Findings))
	fmt.Fprintf(w, "Risk score:\t%d\n", result.RiskScore)
	fmt.Fprintf(w, "Duration:\t%s\n", result.ExecutionTime.Round(time.Millisecond))
	w.Flush()

	if len(result.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, rec := range result.Recommendations {
			fmt.Printf("  [%s] %s\n", rec.Priority, rec.Action)
		}
	}
	return nil
}

func listTools(cmd *cobra.Command, args []string) error {
	registry := tools.NewRegistry()
	tools.RegisterDefaults(registry)

	fmt.Println(strings.Join(registry.Names(), "\n"))
	return nil
}
