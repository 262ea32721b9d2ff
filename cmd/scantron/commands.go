package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go-scantron-grader/internal/config"
	"go-scantron-grader/internal/container"
	"go-scantron-grader/internal/logger"
	"go-scantron-grader/internal/repository"
	"go-scantron-grader/internal/service"
	"go-scantron-grader/internal/storage"
	"go-scantron-grader/pkg/models"
)

// loadConfig layers flags over SCANTRON_* variables, scantron.yaml and defaults.
// Flags left at zero values do not override the other layers.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.NewViper()
	if err != nil {
		return nil, err
	}
	if err := bindChangedFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	logger.SetOutput(os.Stderr)
	logger.SetLevel(v.GetString("log-level"))
	return config.Load(v)
}

// bindChangedFlags binds every flag the user set to the viper key of the same name
func bindChangedFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *container.Container) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c, err := container.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, c)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade [flags] <page image or directory>...",
		Short: "Grade a batch of page images and merge the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignment, _ := cmd.Flags().GetString("assignment")
			rosterFile, _ := cmd.Flags().GetString("roster")
			version, _ := cmd.Flags().GetString("default-version")

			pages, err := collectPages(args)
			if err != nil {
				return err
			}
			var roster []models.RosterEntry
			if rosterFile != "" {
				if roster, err = repository.LoadRoster(rosterFile); err != nil {
					return err
				}
			}

			return withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				start := time.Now()
				res, err := c.GradingService().GradeURLs(ctx, service.URLBatchRequest{
					AssignmentID:     assignment,
					PageURLs:         pages,
					Roster:           roster,
					DefaultVersionID: version,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summarize(res, time.Since(start)))
			})
		},
	}
	f := cmd.Flags()
	f.StringP("assignment", "a", "", "Assignment id (required)")
	f.StringP("roster", "r", "", "Roster YAML used for OCR name matching")
	f.String("default-version", "", "Answer key version for OCR-identified pages")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

// collectPages expands directories into their page images, sorted by name
func collectPages(args []string) ([]string, error) {
	var pages []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			pages = append(pages, arg)
			continue
		}
		files, err := storage.ListPageFiles(arg)
		if err != nil {
			return nil, err
		}
		pages = append(pages, files...)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no page images found")
	}
	return pages, nil
}

func summarize(res *service.BatchResult, took time.Duration) models.BatchResponse {
	resp := models.BatchResponse{
		BatchID:           res.BatchID,
		AssignmentID:      res.AssignmentID,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		ProcessingTimeSec: took.Seconds(),
		Graded:            len(res.Records),
		Unidentified:      len(res.Unidentified),
		Revision:          res.Book.Revision,
		Records:           res.Records,
		Pending:           res.Unidentified,
		Stats:             res.Book.Stats,
	}
	for _, r := range res.Records {
		if r.NeedsReview {
			resp.NeedsReview++
		}
	}
	return resp
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Assign an unidentified page to a student and grade it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			assignment, _ := cmd.Flags().GetString("assignment")
			page, _ := cmd.Flags().GetInt("page")
			student, _ := cmd.Flags().GetString("student")
			version, _ := cmd.Flags().GetString("version")
			batch, _ := cmd.Flags().GetString("batch")

			return withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				rec, err := c.GradingService().ResolvePage(ctx, assignment, page, service.ResolveRequest{
					StudentID: student,
					VersionID: version,
					BatchID:   batch,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	f := cmd.Flags()
	f.StringP("assignment", "a", "", "Assignment id (required)")
	f.IntP("page", "p", 0, "Scantron page number (required)")
	f.StringP("student", "s", "", "Student id (required)")
	f.String("version", "", "Answer key version (defaults to the page's decoded or only version)")
	f.String("batch", "", "Batch id, needed when the page number is pending in several batches")
	_ = cmd.MarkFlagRequired("assignment")
	_ = cmd.MarkFlagRequired("page")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print statistics, grade distribution and pending pages of an assignment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			assignment, _ := cmd.Flags().GetString("assignment")
			output, _ := cmd.Flags().GetString("output")

			return withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				rep, err := c.ReportService().Report(ctx, assignment)
				if err != nil {
					return err
				}
				if output == "-" {
					return writeJSON(cmd.OutOrStdout(), rep)
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				return writeJSON(f, rep)
			})
		},
	}
	f := cmd.Flags()
	f.StringP("assignment", "a", "", "Assignment id (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the grading HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				return serve(ctx, c)
			})
		},
	}
	f := cmd.Flags()
	f.String("host", "0.0.0.0", "Listen host")
	f.String("port", "8080", "Listen port")
	f.String("page-root", "", "Directory local page paths must stay under")
	return cmd
}
