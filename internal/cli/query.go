package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/parser"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/proto"
)

func newEventCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "event <id>",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e proto.Event
			if err := a.call(cmd.Context(), proto.MethodEventsGet, proto.GetEventRequest{ID: args[0]}, &e); err != nil {
				return fmt.Errorf("event %s: %w", args[0], err)
			}
			return a.print(e)
		},
	}
}

func newTimelineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <id>",
		Short: "Show an event with all of its descendants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var node proto.TimelineNode
			if err := a.call(cmd.Context(), proto.MethodEventsTimeline, proto.TimelineRequest{ID: args[0]}, &node); err != nil {
				return fmt.Errorf("timeline %s: %w", args[0], err)
			}
			return a.print(node)
		},
	}
}

func newOverlapsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overlaps",
		Short: "List every pair of events whose spans intersect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []proto.Overlap
			if err := a.call(cmd.Context(), proto.MethodInsightsOverlaps, proto.OverlapsRequest{}, &out); err != nil {
				return fmt.Errorf("overlaps: %w", err)
			}
			if out == nil {
				out = []proto.Overlap{}
			}
			return a.print(out)
		},
	}
}

func newGapsCmd(a *app) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "gaps --start <date> --end <date>",
		Short: "Find the largest gap between events inside a window",
		Long: `Find the largest stretch of time with no event inside [start, end].

Examples:
  chronoctl gaps --start 2023-01-01T00:00:00Z --end 2023-01-31T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parser.ParseDate(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			to, err := parser.ParseDate(end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			if to.Before(from) {
				return errors.New("--end must not be before --start")
			}
			var resp proto.GapsResponse
			if err := a.call(cmd.Context(), proto.MethodInsightsGaps, proto.GapsRequest{Start: from, End: to}, &resp); err != nil {
				return fmt.Errorf("gaps: %w", err)
			}
			return a.print(resp)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "window start (ISO 8601)")
	cmd.Flags().StringVar(&end, "end", "", "window end (ISO 8601)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newInfluenceCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "influence --from <id> --to <id>",
		Short: "Find the shortest-duration parent-to-child path between two events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path proto.InfluencePath
			if err := a.call(cmd.Context(), proto.MethodInsightsInfluence, proto.InfluenceRequest{From: from, To: to}, &path); err != nil {
				return fmt.Errorf("influence %s -> %s: %w", from, to, err)
			}
			return a.print(path)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source event id")
	cmd.Flags().StringVar(&to, "to", "", "target event id")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
