package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fiapx/fiapx-frame-expander/internal/domain/port"
	"github.com/fiapx/fiapx-frame-expander/internal/expander"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/config"
	"github.com/fiapx/fiapx-frame-expander/internal/infra/localfs"
	"github.com/fiapx/fiapx-frame-expander/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const importHint = "Now open in GIMP through 'File->Open as layers' and save as GIF"

var newLogger = logger.New

func main() {
	cfg, err := config.LoadCLI()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.CLIConfig) *cobra.Command {
	opts := *cfg

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Repeat source images into a fixed-rate frame sequence",
		Long: "expand lists the source images in --src, sorts them by name and copies each one\n" +
			"into --dst as image0.png, image1.png, ... so that it is held for its duration\n" +
			"at --fps. The destination directory must already exist.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.SourceDir, "src", opts.SourceDir, "directory holding the source images")
	flags.StringVar(&opts.DestDir, "dst", opts.DestDir, "existing directory the frames are written to")
	flags.Float64SliceVar(&opts.Durations, "durations", opts.Durations, "hold duration in seconds for each source, in name order")
	flags.IntVar(&opts.FPS, "fps", opts.FPS, "frames per second")
	flags.StringVar(&opts.Extension, "ext", opts.Extension, "source file name suffix")
	flags.BoolVar(&opts.StrictPairing, "strict", opts.StrictPairing, "fail when the number of sources and durations differ")
	flags.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level")

	return cmd
}

func run(cmd *cobra.Command, opts *config.CLIConfig) error {
	log, err := newLogger(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	names, err := localfs.NewLister(opts.Extension).ListSources(opts.SourceDir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, names)

	sources := make([]string, len(names))
	for i, name := range names {
		sources[i] = filepath.Join(opts.SourceDir, name)
	}

	res, err := expander.New().Expand(cmd.Context(), port.ExpansionRequest{
		Sources:        sources,
		Durations:      opts.Durations,
		FPS:            opts.FPS,
		DestinationDir: opts.DestDir,
		StrictPairing:  opts.StrictPairing,
	})
	if res != nil && len(res.Skipped) > 0 {
		log.Warn("sources without a duration were skipped",
			zap.Strings("skipped", res.Skipped),
			zap.Int("durations", len(opts.Durations)),
		)
	}
	if err != nil {
		if res != nil {
			log.Info("expansion stopped", zap.Int("frames_written", res.FrameCount()))
		}
		return fmt.Errorf("expand frames: %w", err)
	}

	log.Debug("expansion finished", zap.Ints("counts", res.Counts))
	fmt.Fprintf(out, "Wrote %d frames to %s\n", res.FrameCount(), opts.DestDir)
	fmt.Fprintln(out, importHint)
	return nil
}
