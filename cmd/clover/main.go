package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var (
	recipePath string
	envFiles   []string

	rootCmd = &cobra.Command{
		Use:   "clover",
		Short: "Probabilistic record linkage over civil registration records",
		Long: `clover links records under a composite field distance, judges the links against
ground truth, stores them as a graph and resolves inconsistent clusters.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&recipePath, "recipe", "r", "recipe.yaml", "path to the linkage recipe")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files loaded before the environment (default .env)")

	rootCmd.AddCommand(linkCmd, resolveCmd, sweepCmd, checkCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
