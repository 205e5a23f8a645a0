package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gonephishing/internal/adapters/xlsxexport"
	"gonephishing/internal/app"
	"gonephishing/internal/config"
	"gonephishing/internal/domain"
	"gonephishing/internal/logging"
	"gonephishing/internal/services/brand"
	"gonephishing/internal/services/scoring"
	"gonephishing/internal/services/variants"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "phishctl",
		Short:         "Lookalike domain generation, page scoring and findings export",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			printBanner(cmd.OutOrStdout())
			_ = cmd.Help()
		},
	}
	root.AddCommand(newVariantsCmd(), newScoreCmd(), newExportCmd())
	return root
}

func printBanner(w io.Writer) {
	fig := figure.NewFigure("phishctl", "doom", true)
	_, _ = color.New(color.FgRed).Fprintln(w, fig.String())
	_, _ = color.New(color.FgCyan).Fprintln(w, strings.Repeat("=", 48))
}

// loadConfig reads the environment. A missing database URL only matters to
// commands that open the store.
func loadConfig() (config.Config, *logrus.Entry, error) {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrNoDatabaseURL) {
		return cfg, nil, err
	}
	level := cfg.LogLevel
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	return cfg, logging.New(level, cfg.LogFormat).WithField("cmd", "phishctl"), nil
}

func newVariantsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "variants <domain>",
		Short: "Print the lookalike candidates generated for a seed domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			det := cfg.Detection
			if limit > 0 {
				det.MaxVariants = limit
			}
			gen := variants.New(variants.Options{
				MaxVariants:   det.MaxVariants,
				AlternateTLDs: det.AlternateTLDs,
				BrandTokens:   det.BrandTokens,
			})
			out := cmd.OutOrStdout()
			candidates := gen.Generate(args[0])
			if len(candidates) == 0 {
				return fmt.Errorf("%q has no name and TLD to mutate", args[0])
			}
			for _, c := range candidates {
				fmt.Fprintln(out, c)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "max", 0, "cap on generated candidates (default from config)")
	return cmd
}

func newScoreCmd() *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "score <candidate>",
		Short: "Fetch a candidate and score its landing page against a seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			p := app.NewPipeline(cfg, log)
			candidate := targetHost(args[0])

			page, err := p.Fetcher.Fetch(cmd.Context(), seed, candidate)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !page.Responded {
				fmt.Fprintf(out, "%s: no response\n", candidate)
				return nil
			}
			res := p.Scorer.Score(scoring.Input{
				HTML:                    page.Body,
				BaseDomain:              brand.BaseDomain(seed),
				FinalURL:                page.FinalURL,
				RedirectLocation:        page.RedirectLocation,
				UnexpectedOAuthRedirect: page.UnexpectedOAuthRedirect,
			})
			printScore(out, candidate, page.HTTPStatus, page.RedirectHosts, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "seed domain the candidate may impersonate")
	_ = cmd.MarkFlagRequired("seed")
	return cmd
}

// targetHost reduces a URL or bare host to host[:port].
func targetHost(arg string) string {
	if !strings.Contains(arg, "://") {
		arg = "http://" + arg
	}
	u, err := url.Parse(arg)
	if err != nil || u.Host == "" {
		return variants.Normalize(arg)
	}
	return strings.ToLower(u.Host)
}

func printScore(w io.Writer, candidate string, status int, hops []string, res scoring.Result) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "%s", candidate)
	fmt.Fprintf(w, "  HTTP %d\n", status)
	if len(hops) > 0 {
		fmt.Fprintf(w, "  redirects: %s\n", strings.Join(hops, " -> "))
	}
	if res.Title != "" {
		fmt.Fprintf(w, "  title: %s\n", res.Title)
	}
	fmt.Fprintf(w, "  score: %d ", res.Score)
	_, _ = bandColor(res.Band).Fprintln(w, strings.ToUpper(string(res.Band)))
	for _, r := range res.Reasons {
		fmt.Fprintf(w, "    - %s\n", r)
	}
}

func bandColor(band domain.LookupStatus) *color.Color {
	switch band {
	case domain.LookupDanger:
		return color.New(color.FgRed, color.Bold)
	case domain.LookupSuspicious:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func newExportCmd() *cobra.Command {
	var (
		jobID  int64
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a job's findings and task outcomes to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.GetJob(ctx, jobID)
			if err != nil {
				return fmt.Errorf("job %d: %w", jobID, err)
			}
			tasks, err := store.ListTasks(ctx, jobID)
			if err != nil {
				return err
			}
			findings, err := store.ListFindings(ctx, jobID)
			if err != nil {
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := xlsxexport.Write(f, job, tasks, findings); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "wrote %d findings, %d tasks to %s\n",
				len(findings), len(tasks), output)
			return nil
		},
	}
	cmd.Flags().Int64Var(&jobID, "job", 0, "scan job id")
	cmd.Flags().StringVarP(&output, "output", "o", "findings.xlsx", "workbook path")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}
