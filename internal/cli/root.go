// Package cli contains the mediactl command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mtiwari1/gophermedia/internal/processor"
	"github.com/mtiwari1/gophermedia/internal/router"
	"github.com/mtiwari1/gophermedia/internal/toolprobe"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	grpcAddr string
	output   string
	probe    *toolprobe.Probe
}

// NewRootCmd builds the mediactl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{probe: toolprobe.NewProbe()})
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "mediactl",
		Short: "Operate a gophermedia server",
		Long: `mediactl inspects and drives a gophermedia server.

Examples:
  # Which external tools will the processors find?
  mediactl tools

  # Is the inference service up, and which models are loaded?
  mediactl health

  # Re-run processing for one record and wait for the outcome
  mediactl process 3f2c0f8e-... --wait`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.grpcAddr, "grpc", envOr("MEDIACTL_GRPC", "localhost:50051"), "gRPC address of the server")
	flags.StringVarP(&opts.output, "output", "o", "table", "output format: table or json")

	root.AddCommand(
		newToolsCmd(opts),
		newPolicyCmd(),
		newHealthCmd(opts),
		newEmbedCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newProcessCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI with SIGINT/SIGTERM cancelling the command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newToolsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Report which external processing tools are installed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := opts.probe.Report(processor.ToolNames...)
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tAVAILABLE\tPATH")
			for _, st := range report {
				fmt.Fprintf(w, "%s\t%t\t%s\n", st.Name, st.Available, st.Path)
			}
			return w.Flush()
		},
	}
}

func newPolicyCmd() *cobra.Command {
	var check string
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print an example routing policy, or validate one with --check",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if check == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), router.ExamplePolicy())
				return err
			}
			p, err := router.LoadPolicy(check)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d buckets OK\n", check, len(p.Buckets))
			return nil
		},
	}
	cmd.Flags().StringVar(&check, "check", "", "policy file to validate")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mediactl version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mediactl", Version)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
