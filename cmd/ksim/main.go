// Command ksim boots the multiprocessor kernel core entirely on top
// of internal/platform's simulated collaborators: it is the spec's
// "External Interfaces" boundary driven by a host CLI instead of real
// firmware, letting every internal/ package run end to end without
// target hardware.
//
// Grounded on the corpus's cobra-root-plus-viper-bound-flags CLI
// shape (several retrieved infra-tooling manifests carry both
// modules; biscuit itself has no CLI since it only boots as a kernel
// image).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mpkernel/core/internal/klog"
)

var (
	flagCPUs     int
	flagHeapMB   int
	flagRunFor   time.Duration
	flagLogLevel string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ksim",
		Short: "Simulate a multiprocessor boot of the kernel core on the host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := Config{
				CPUs:     viper.GetInt("cpus"),
				HeapMB:   viper.GetInt("heap-mb"),
				RunFor:   viper.GetDuration("run-for"),
				LogLevel: viper.GetString("log-level"),
			}
			log := klog.New(os.Stdout, cfg.LogLevel)
			defer log.Sync()

			k := NewKernel(cfg, log)
			ctx, cancel := context.WithTimeout(context.Background(), cfg.RunFor+10*time.Second)
			defer cancel()

			if err := k.Boot(ctx); err != nil {
				return fmt.Errorf("boot: %w", err)
			}
			defer k.Shutdown()

			return k.RunDemo()
		},
	}

	cmd.Flags().IntVar(&flagCPUs, "cpus", 4, "number of simulated CPUs to bring up")
	cmd.Flags().IntVar(&flagHeapMB, "heap-mb", 16, "MiB of simulated RAM on top of a fixed 16 MiB (the kernel heap is always kconfig.KheapSize)")
	cmd.Flags().DurationVar(&flagRunFor, "run-for", 5*time.Second, "how long to run the demo workload before giving up")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "zap log level (debug, info, warn, error)")

	_ = viper.BindPFlag("cpus", cmd.Flags().Lookup("cpus"))
	_ = viper.BindPFlag("heap-mb", cmd.Flags().Lookup("heap-mb"))
	_ = viper.BindPFlag("run-for", cmd.Flags().Lookup("run-for"))
	_ = viper.BindPFlag("log-level", cmd.Flags().Lookup("log-level"))

	viper.SetConfigName("ksim")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("KSIM")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // absence of a config file is not an error

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
