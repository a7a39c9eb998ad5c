package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/proto"
)

func newIngestCmd(a *app) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest an event file that is readable by the server",
		Long: `Start an ingestion job for a pipe-delimited event file. The path is
resolved on the server, so it must be visible to the server process.

Examples:
  chronoctl ingest /data/events.txt
  chronoctl ingest /data/events.txt --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			var resp proto.IngestResponse
			if err := a.call(cmd.Context(), proto.MethodIngestionIngestPath, proto.IngestPathRequest{FilePath: path}, &resp); err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			if !wait {
				return a.print(resp)
			}
			job, err := a.waitJob(cmd, resp.JobID)
			if err != nil {
				return err
			}
			return a.print(job)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the job to finish and print its final status")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "status <jobId>",
		Short: "Show the status of an ingestion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait {
				job, err := a.waitJob(cmd, args[0])
				if err != nil {
					return err
				}
				return a.print(job)
			}
			var job proto.Job
			if err := a.call(cmd.Context(), proto.MethodIngestionStatus, proto.JobStatusRequest{JobID: args[0]}, &job); err != nil {
				return fmt.Errorf("status %s: %w", args[0], err)
			}
			return a.print(job)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "block until the job is COMPLETED or FAILED")
	return cmd
}

// waitJob repeats server-side waits until the job is terminal. Each call is
// bounded by the server's call timeout, which may be shorter than the job.
func (a *app) waitJob(cmd *cobra.Command, id string) (proto.Job, error) {
	for {
		var job proto.Job
		if err := a.call(cmd.Context(), proto.MethodIngestionStatus, proto.JobStatusRequest{JobID: id, Wait: true}, &job); err != nil {
			return job, fmt.Errorf("waiting for %s: %w", id, err)
		}
		if job.Terminal() {
			return job, nil
		}
		select {
		case <-cmd.Context().Done():
			return job, cmd.Context().Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
