package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"study-planner/internal/coordinator"
	"study-planner/internal/document"
	"study-planner/internal/planner"
	"study-planner/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "studyplanner",
		Short:         "Study planner: deadline extraction, daily plans and a study assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), extractCmd(), documentsCmd(), planCmd(), chatCmd(), searchCmd(), jobsCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Telegram bot and the scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, _ := a.cfg.Location()
			scheduler := service.NewSchedulerService(loc, a.log.Named("scheduler"))
			if err := scheduler.RegisterBatchJobs(a.batch, a.jobSchedule()); err != nil {
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()
			a.log.Infow("scheduler started", "jobs", scheduler.Entries())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.httpServer().Run(gctx)
			})
			if a.telegram != nil {
				g.Go(func() error {
					if err := a.bot().Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return fmt.Errorf("bot: %w", err)
					}
					return nil
				})
			} else {
				a.log.Warn("TELEGRAM_TOKEN not set, bot disabled")
			}

			err = g.Wait()
			a.log.Info("shutdown complete")
			return err
		},
	}
}

func extractCmd() *cobra.Command {
	var owner uint
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract assignments and events from a document; with --user, store them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			contentType := fileType(args[0])
			text, err := document.ToText(contentType, body)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if owner == 0 {
				res, err := a.coord.Extract(cmd.Context(), text)
				if err != nil {
					return err
				}
				return printJSON(res)
			}
			res, err := a.coord.ProcessDocument(cmd.Context(), owner, coordinator.Upload{
				Filename:    filepath.Base(args[0]),
				ContentType: contentType,
				Size:        len(body),
				Text:        text,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().UintVar(&owner, "user", 0, "store the result for this user id")
	return cmd
}

// fileType maps a file extension to a content type document.ToText accepts.
func fileType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case "":
		return "text/plain"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "text/plain"
}

func documentsCmd() *cobra.Command {
	var (
		owner uint
		limit int
	)
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List a user's processed documents and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.coord.Documents(cmd.Context(), owner, limit)
			if err != nil {
				return err
			}
			for _, d := range docs {
				fmt.Printf("%d  %-10s  %s  tasks=%d events=%d  %s\n",
					d.ID, d.Status, d.CreatedAt.Format(time.RFC3339), d.TasksCreated, d.EventsCreated, d.Filename)
				if d.Error != "" {
					fmt.Printf("    error: %s\n", d.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&owner, "user", 0, "user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of documents")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func planCmd() *cobra.Command {
	var (
		owner uint
		date  string
		mode  string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a day for a user and store the plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := a.coord.ParseDate(date)
			if err != nil {
				return err
			}
			plan, err := a.coord.PlanDay(cmd.Context(), owner, day, planner.ParseMode(mode))
			if err != nil {
				return err
			}
			return printJSON(plan)
		},
	}
	cmd.Flags().UintVar(&owner, "user", 0, "user id")
	cmd.Flags().StringVar(&date, "date", "", "day to plan, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&mode, "mode", string(planner.ModeInteractive), "interactive or batch")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func chatCmd() *cobra.Command {
	var owner uint
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message to the study assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.coord.HandleChat(cmd.Context(), owner, strings.Join(args, " "), nil)
			if err != nil {
				return err
			}
			fmt.Println(res.Response)
			if res.PlanUpdated {
				fmt.Println("(today's plan was updated)")
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&owner, "user", 0, "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		owner uint
		topK  int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a user's stored context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			hits, err := a.coord.Query(cmd.Context(), owner, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Println("no results")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%.3f  %s  %s\n", h.Relevance(), h.ID, h.Text)
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&owner, "user", 0, "user id")
	cmd.Flags().IntVarP(&topK, "top", "k", 5, "number of results")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func jobsCmd() *cobra.Command {
	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Batch jobs",
	}
	jobs.AddCommand(&cobra.Command{
		Use:       "run <name>",
		Short:     "Run one batch job now: " + strings.Join(service.JobNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: service.JobNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			tally, err := a.batch.Run(cmd.Context(), args[0], time.Now().In(loc))
			if err != nil {
				return err
			}
			return printJSON(tally)
		},
	})
	return jobs
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
