package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mtiwari1/gophermedia/internal/config"
	"github.com/mtiwari1/gophermedia/internal/inference"
)

// gateway builds an uncached gateway from the same environment the server reads.
func gateway(cmd *cobra.Command) (*inference.Gateway, error) {
	cfg, err := config.LoadCfg(cmd.Context())
	if err != nil {
		return nil, err
	}
	return inference.NewGateway(cfg.InferenceCfg, inference.Deps{}), nil
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query the inference service health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := gateway(cmd)
			if err != nil {
				return err
			}
			h, err := gw.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("inference health: %w", err)
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), h)
			}

			var features []string
			for name, on := range h.Features {
				if on {
					features = append(features, name)
				}
			}
			sort.Strings(features)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status:   %s\n", h.Status)
			fmt.Fprintf(out, "device:   %s\n", h.Device)
			fmt.Fprintf(out, "models:   %t\n", h.ModelsLoaded)
			fmt.Fprintf(out, "features: %s\n", strings.Join(features, ", "))
			return nil
		},
	}
}

func newEmbedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <text>",
		Short: "Compute a text embedding for semantic search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := gateway(cmd)
			if err != nil {
				return err
			}
			vec, err := gw.EmbedText(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("embed text: %w", err)
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), vec)
			}
			head := vec
			if len(head) > 8 {
				head = head[:8]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dimensions: %d\nhead: %v\n", len(vec), head)
			return nil
		},
	}
}
