package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"clip-splitter/internal/artifacts"
	"clip-splitter/internal/jobs"
	"clip-splitter/internal/retention"
	"clip-splitter/internal/segment"
	"clip-splitter/internal/startup"
	"clip-splitter/internal/transcoder"

	"github.com/spf13/cobra"
)

func UsageCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show storage usage against the quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.store()
			if err != nil {
				return err
			}
			quota, err := opts.quotaBytes()
			if err != nil {
				return err
			}
			used, err := artifacts.NewAccountant(store, quota).Usage()
			if err != nil {
				return fmt.Errorf("failed to measure usage: %w", err)
			}
			uploads, err := store.ListUploads()
			if err != nil {
				return fmt.Errorf("failed to list uploads: %w", err)
			}
			projects, err := store.ListProjects()
			if err != nil {
				return fmt.Errorf("failed to list projects: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Uploads:  %d (%s)\n", len(uploads), store.UploadDir())
			fmt.Fprintf(out, "Projects: %d (%s)\n", len(projects), store.ClipsDir())
			if quota <= 0 {
				fmt.Fprintf(out, "Used:     %s of unlimited\n", startup.FormatBytes(used))
				return nil
			}
			fmt.Fprintf(out, "Used:     %s of %s (%.1f%%)\n",
				startup.FormatBytes(used), startup.FormatBytes(quota), float64(used)*100/float64(quota))
			return nil
		},
	}
	return cmd
}

func SweepCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete uploads and projects older than the retention window",
		Long: "Runs one retention sweep. Artifacts claimed by jobs in a running\n" +
			"server are not visible here, so keep the window above the longest job.",
		RunE: func(cmd *cobra.Command, args []string) error {
			window, _ := cmd.Flags().GetDuration("window")
			asJSON, _ := cmd.Flags().GetBool("json")
			if window <= 0 {
				return fmt.Errorf("the --window flag must be positive")
			}

			store, err := opts.store()
			if err != nil {
				return err
			}
			// No jobs run in this process, so nothing is claimed.
			sweeper := retention.NewSweeper(store, jobs.NewRegistry(1), window, window)
			res := sweeper.Sweep()

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(res)
			}
			fmt.Fprintf(out, "Deleted %d, skipped %d, errors %d, freed %s\n",
				res.Deleted, res.Skipped, res.Errors, startup.FormatBytes(res.BytesFreed))
			if res.Errors > 0 {
				return fmt.Errorf("%d artifacts could not be removed", res.Errors)
			}
			return nil
		},
	}
	cmd.Flags().Duration("window", envDuration("RETENTION_WINDOW", startup.DefaultRetentionWindow), "Retention window")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	return cmd
}

func PlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <duration-seconds>",
		Short: "Show how a video of the given length would be split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			duration, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[0], err)
			}
			length, _ := cmd.Flags().GetDuration("length")
			return printPlan(cmd.OutOrStdout(), duration, length)
		},
	}
	cmd.Flags().Duration("length", envDuration("SEGMENT_LENGTH", startup.DefaultSegmentLength), "Segment length")
	return cmd
}

func ProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Probe a video with ffprobe and show its segment plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ffprobe, _ := cmd.Flags().GetString("ffprobe")
			length, _ := cmd.Flags().GetDuration("length")

			t := transcoder.New(transcoder.Config{FFprobePath: ffprobe})
			info, err := t.Probe(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to probe %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Duration: %.3fs\n", info.Duration)
			fmt.Fprintf(out, "Video:    %s %dx%d\n", info.Codec, info.Width, info.Height)
			fmt.Fprintf(out, "Audio:    %v\n\n", info.HasAudio)
			return printPlan(out, info.Duration, length)
		},
	}
	cmd.Flags().String("ffprobe", envOr("FFPROBE_PATH", "ffprobe"), "Path to ffprobe")
	cmd.Flags().Duration("length", envDuration("SEGMENT_LENGTH", startup.DefaultSegmentLength), "Segment length")
	return cmd
}

func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "clipctl %s (commit %s, built %s, %s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion)
			return nil
		},
	}
}

func printPlan(out io.Writer, duration float64, length time.Duration) error {
	segments, err := segment.Plan(duration, length.Seconds())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d segments of up to %v\n", len(segments), length)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PART\tSTART\tDURATION\tFILE")
	for _, s := range segments {
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%s\n", s.Index, s.Start, s.Duration, s.Filename())
	}
	return tw.Flush()
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(envOr(key, "")); err == nil && d > 0 {
		return d
	}
	return fallback
}
