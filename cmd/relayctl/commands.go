package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joshu-sajeev/promptrelay/internal/client"
	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const requestTimeout = 30 * time.Second

type options struct {
	server string
	apiKey string
	output string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Submit prompts to the relay queue and inspect jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "json" && opts.output != "yaml" {
				return fmt.Errorf("--output must be json or yaml, got %q", opts.output)
			}
			if opts.server == "" {
				return fmt.Errorf("--server is required (or set RELAY_SERVER_URL)")
			}
			return nil
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.server, "server", os.Getenv("RELAY_SERVER_URL"), "queue server base URL")
	pf.StringVar(&opts.apiKey, "api-key", os.Getenv("API_KEY"), "shared API key")
	pf.StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")

	root.AddCommand(
		submitCmd(opts),
		getCmd(opts),
		consumeCmd(opts),
		deleteCmd(opts),
		listCmd(opts),
		statsCmd(opts),
		cleanupCmd(opts),
		healthCmd(opts),
	)
	return root
}

func (o *options) client() *client.Client {
	return client.New(o.server, o.apiKey)
}

func submitCmd(opts *options) *cobra.Command {
	var webhook, promptMode, modelMode, image, continuation string

	cmd := &cobra.Command{
		Use:   "submit <prompt>",
		Short: "Enqueue a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			job, err := opts.client().Submit(ctx, &dto.JobCreateDTO{
				Prompt:             args[0],
				WebhookURL:         optional(webhook),
				PromptMode:         optional(promptMode),
				ModelMode:          optional(modelMode),
				ImageURL:           optional(image),
				ContinuationTarget: optional(continuation),
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, job)
		},
	}

	f := cmd.Flags()
	f.StringVar(&webhook, "webhook", "", "URL notified when the job finishes")
	f.StringVar(&promptMode, "prompt-mode", "", "prompt mode passed to the page agent")
	f.StringVar(&modelMode, "model-mode", "", "model mode appended to the conversation URL")
	f.StringVar(&image, "image", "", "image URL or data URI to attach")
	f.StringVar(&continuation, "continue", "", "conversation URL to continue")
	return cmd
}

func getCmd(opts *options) *cobra.Command {
	var deleteAfter bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			job, err := opts.client().Get(ctx, id, deleteAfter)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, job)
		},
	}
	cmd.Flags().BoolVar(&deleteAfter, "delete", false, "delete the job once it has finished")
	return cmd
}

func consumeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "consume <id>",
		Short: "Fetch and delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			job, err := opts.client().Consume(ctx, id)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, job)
		},
	}
}

func deleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job without fetching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			existed, err := opts.client().Delete(ctx, id)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, dto.DeleteResultDTO{ID: id, Deleted: existed})
		},
	}
}

func listCmd(opts *options) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			jobs, err := opts.client().List(ctx, status, limit)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, jobs)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only jobs in this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs")
	return cmd
}

func statsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			stats, err := opts.client().Stats(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, stats)
		},
	}
}

func cleanupCmd(opts *options) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished jobs older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours < 0 {
				return fmt.Errorf("--retention-hours must be non-negative")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			deleted, err := opts.client().Cleanup(ctx, hours)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, dto.CleanupResultDTO{Deleted: deleted})
		},
	}
	cmd.Flags().IntVar(&hours, "retention-hours", 24, "age in hours past which finished jobs are removed")
	return cmd
}

func healthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the queue server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			if err := opts.client().Health(ctx); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, map[string]string{"status": "ok"})
		},
	}
}

// render writes v as indented JSON or as YAML. YAML goes through the JSON
// form so field names and raw results look the same in both.
func render(w io.Writer, format string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	if format == "yaml" {
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(json.RawMessage(raw))
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return uint(id), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
