package main

import (
	"fmt"
	"os"
	"path/filepath"

	"clip-splitter/internal/artifacts"
	"clip-splitter/internal/logging"
	"clip-splitter/internal/startup"

	"github.com/spf13/cobra"
)

// options mirrors the server's directory and quota settings so the tool
// operates on the same trees.
type options struct {
	dataDir   string
	uploadDir string
	clipsDir  string
	quota     string
	logLevel  string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (o *options) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	base, err := filepath.Abs(o.dataDir)
	if err != nil {
		return "", fmt.Errorf("resolve data directory: %w", err)
	}
	return filepath.Join(base, path), nil
}

func (o *options) store() (*artifacts.Store, error) {
	uploads, err := o.resolve(o.uploadDir)
	if err != nil {
		return nil, err
	}
	clips, err := o.resolve(o.clipsDir)
	if err != nil {
		return nil, err
	}
	return artifacts.NewStore(uploads, clips)
}

func (o *options) quotaBytes() (int64, error) {
	q, err := startup.ParseBytes(o.quota)
	if err != nil {
		return 0, fmt.Errorf("--quota: %w", err)
	}
	return q, nil
}

// NewRootCmd builds the clipctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "clipctl",
		Short:         "Maintenance tool for the clip splitter's upload and clip storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel == "" {
				return nil
			}
			level, ok := logging.ParseLevel(opts.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", opts.logLevel)
			}
			logging.SetLevel(level)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.dataDir, "data-dir", envOr("DATA_DIR", "."), "Base directory for relative paths")
	flags.StringVar(&opts.uploadDir, "uploads", envOr("UPLOAD_DIR", "uploads"), "Upload directory")
	flags.StringVar(&opts.clipsDir, "clips", envOr("CLIPS_DIR", "clips"), "Clips directory")
	flags.StringVar(&opts.quota, "quota", envOr("STORAGE_QUOTA", "10GiB"), "Storage quota (0 for unlimited)")
	flags.StringVar(&opts.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "Log level (debug, info, warn, error)")

	root.AddCommand(UsageCmd(opts))
	root.AddCommand(SweepCmd(opts))
	root.AddCommand(PlanCmd())
	root.AddCommand(ProbeCmd())
	root.AddCommand(VersionCmd())

	return root
}
