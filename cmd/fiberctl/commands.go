package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/internal/seed"
	"github.com/okian/fibertrace/pkg/logger"
)

type rootFlags struct {
	baseURL  string
	identity string
	header   string
	timeout  time.Duration
	verbose  bool
}

func (f *rootFlags) client() *seed.Client {
	return seed.NewClient(f.baseURL, f.identity, f.timeout, seed.WithIdentityHeader(f.header))
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "fiberctl",
		Short:         "Seed and query a fibertrace service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if f.verbose {
				return logger.SetLevelString("debug")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&f.baseURL, "url", seed.DefaultBaseURL, "Base URL of the service")
	cmd.PersistentFlags().StringVar(&f.identity, "identity", seed.DefaultIdentity, "Submitter identity sent with each request")
	cmd.PersistentFlags().StringVar(&f.header, "identity-header", seed.DefaultIdentityHeader, "Header carrying the identity; must match the service's identity_header")
	cmd.PersistentFlags().DurationVar(&f.timeout, "timeout", seed.DefaultTimeout, "HTTP request timeout")
	cmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newSeedCmd(f), newEstimateCmd(f), newModelsCmd(f))
	return cmd
}

func newSeedCmd(f *rootFlags) *cobra.Command {
	cfg := seed.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate synthetic reference samples and submit them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.BaseURL = f.baseURL
			cfg.Identity = f.identity
			cfg.IdentityHeader = f.header
			cfg.Timeout = f.timeout
			stats, err := seed.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().IntVarP(&cfg.Count, "count", "n", cfg.Count, "Number of samples to generate")
	cmd.Flags().IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "Number of concurrent submitters")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", 0, "Generator seed (0 = random)")
	cmd.Flags().Float64Var(&cfg.Noise, "noise", cfg.Noise, "Standard deviation of the marker noise")
	return cmd
}

func newEstimateCmd(f *rootFlags) *cobra.Command {
	var q estimator.Query
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the marker-fiber percentage of a blend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			est, err := f.client().Estimate(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), est)
		},
	}
	cmd.Flags().Float64VarP(&q.Signal, "signal", "s", 0, "Measured signal count")
	cmd.Flags().Float64Var(&q.Blend.White, model.FiberWhite.String(), 0, "White fiber percentage")
	cmd.Flags().Float64Var(&q.Blend.Black, model.FiberBlack.String(), 0, "Black fiber percentage")
	cmd.Flags().Float64Var(&q.Blend.Denim, model.FiberDenim.String(), 0, "Denim fiber percentage")
	cmd.Flags().Float64Var(&q.Blend.Natural, model.FiberNatural.String(), 0, "Natural fiber percentage")
	cmd.Flags().StringVar(&q.AshColor, "ash-color", "", "Ash colour reading as #RRGGBB")
	_ = cmd.MarkFlagRequired("signal")
	return cmd
}

func newModelsCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Show the fiber models trained on the current dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sums, err := f.client().Models(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, s := range sums {
				if _, err := fmt.Fprintf(w, "%-8s n=%-4d range=[%.0f, %.0f] r2=%.4f rmse=%.4f mae=%.4f  %s\n",
					s.Fiber, s.Samples, s.MinSignal, s.MaxSignal,
					s.Model.RSquared, s.Model.RMSE, s.Model.MAE, s.Model.Formula); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
