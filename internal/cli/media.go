package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mtiwari1/gophermedia/internal/media"
	pb "github.com/mtiwari1/gophermedia/proto"
)

// dial opens a client connection to the server's gRPC port. The caller closes it.
func dial(opts *options) (pb.MediaServiceClient, func() error, error) {
	conn, err := grpc.Dial(opts.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", opts.grpcAddr, err)
	}
	return pb.NewMediaServiceClient(conn), conn.Close, nil
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one media record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			reply, err := client.GetMedia(cmd.Context(), &pb.GetMediaRequest{ID: args[0]})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reply.Media)
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	var req pb.ListMediaRequest
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List media records, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeConn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			reply, err := client.ListMedia(cmd.Context(), &req)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), reply.Media)
			}
			return writeTable(cmd, reply.Media)
		},
	}
	cmd.Flags().StringVar(&req.Category, "category", "", "only this category")
	cmd.Flags().StringVar(&req.Status, "status", "", "only this status")
	cmd.Flags().IntVar(&req.Limit, "limit", 20, "maximum records")
	return cmd
}

func newProcessCmd(opts *options) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "process <id>",
		Short: "Run the processing pipeline for a record again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			reply, err := client.ProcessMedia(cmd.Context(), &pb.ProcessMediaRequest{ID: args[0], Wait: wait})
			if err != nil {
				return err
			}
			if reply.Queued {
				fmt.Fprintf(cmd.OutOrStdout(), "%s queued\n", reply.ID)
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), reply.Media)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "process in the foreground and print the outcome")
	return cmd
}

func writeTable(cmd *cobra.Command, recs []*media.Record) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tSTATUS\tSIZE\tNAME\tCREATED")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Category, r.Status, r.Size, r.OriginalName, r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
