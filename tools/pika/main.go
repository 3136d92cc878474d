package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.2.0"

var conf = DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "pika",
	Short: "Publist load generator",
	Long: `pika drives a publist node through its admin API.

Available subcommands:
  run     - Append generated content events and report throughput
  verify  - Wait for convergence and compare sampled publish lists
  version - Print version`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Append generated content events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := conf.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runBenchmark(ctx, conf)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Wait until the node has converged every appended event",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := conf.Validate(); err != nil {
			return err
		}
		client := NewClient(conf.Host, conf.Secret, conf.RequestTimeout)
		status, err := waitForConvergence(cmd.Context(), client, conf.VerifyTimeout)
		if err != nil {
			return err
		}
		fmt.Printf("Converged: cursor %d, head %d\n", status.Cursor, status.Head)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pika version %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&conf.Host, "host", conf.Host, "Admin base URL of the publist node")
	pf.StringVar(&conf.Secret, "secret", conf.Secret, "Admin secret")
	pf.DurationVar(&conf.RequestTimeout, "request-timeout", conf.RequestTimeout, "Per request timeout")
	pf.DurationVar(&conf.VerifyTimeout, "verify-timeout", conf.VerifyTimeout, "How long to wait for convergence")

	f := runCmd.Flags()
	f.IntVar(&conf.Threads, "threads", conf.Threads, "Concurrent appenders")
	f.IntVar(&conf.Batches, "batches", conf.Batches, "Batches to append, 0 = until --duration")
	f.DurationVar(&conf.Duration, "duration", conf.Duration, "Run time when --batches is 0")
	f.IntVar(&conf.BatchSize, "batch-size", conf.BatchSize, "Events per append request")
	f.IntVar(&conf.Users, "users", conf.Users, "Distinct user ids")
	f.IntVar(&conf.Resources, "resources", conf.Resources, "Distinct resource ids")
	f.StringVar(&conf.Policy, "policy", conf.Policy, "Converter policy the node runs, used by --verify")
	f.StringVar(&conf.ResourcePrefix, "resource-prefix", conf.ResourcePrefix, "Prefix for generated resource ids")
	f.IntVar(&conf.MaxRetries, "max-retries", conf.MaxRetries, "Retries per failed append")
	f.BoolVar(&conf.Verify, "verify", conf.Verify, "Compare sampled publish lists after the run")
	f.IntVar(&conf.VerifySamples, "verify-samples", conf.VerifySamples, "Users to compare, 0 = all")

	rootCmd.AddCommand(runCmd, verifyCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
