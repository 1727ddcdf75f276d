package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/flightcore-dev/flightcore/internal/blackbox"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("flight log '%s' does not exist: %w", config.DBPath, err)
	}

	store := blackbox.New(config.DBPath)
	defer store.Close()

	return renderTrace(ctx, store, config, logger)
}

func renderTrace(ctx context.Context, store *blackbox.Store, config *Config, logger *slog.Logger) error {
	var opts []blackbox.ReaderOption
	var filters []any
	switch {
	case config.StartUs != nil && config.EndUs != nil:
		opts = append(opts, blackbox.WithTimeRange(*config.StartUs, *config.EndUs))
		filters = append(filters,
			slog.Uint64("fromUs", uint64(*config.StartUs)),
			slog.Uint64("toUs", uint64(*config.EndUs)))

	case config.StartUs != nil:
		opts = append(opts, blackbox.WithStartUs(*config.StartUs))
		filters = append(filters, slog.Uint64("fromUs", uint64(*config.StartUs)))

	case config.EndUs != nil:
		opts = append(opts, blackbox.WithEndUs(*config.EndUs))
		filters = append(filters, slog.Uint64("toUs", uint64(*config.EndUs)))
	}

	if config.ArmedOnly {
		opts = append(opts, blackbox.WithArmedOnly())
		filters = append(filters, slog.Bool("armedOnly", true))
	}

	logger.Info("reader configuration", filters...)

	iter, err := store.ReadFrames(ctx, config.SessionID, opts...)
	if err != nil {
		return err
	}
	defer iter.Close()

	var frames []blackbox.Frame
	for iter.Next(ctx) {
		frames = append(frames, iter.Current())
	}
	if err = iter.Error(); err != nil {
		return err
	}

	events, err := store.Events(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("reading events: %w", err)
	}

	trace, err := BuildTrace(iter.Session(), frames, events, config.Width)
	if err != nil {
		return err
	}

	logger.Info("finished reading frames",
		slog.Group("stats",
			slog.String("frames", humanize.Comma(int64(len(frames)))),
			slog.Int("events", len(events)),
			slog.Uint64("startUs", uint64(trace.StartUs)),
			slog.Uint64("endUs", uint64(trace.EndUs)),
		))

	renderer, err := NewTraceRenderer(RenderConfig{FontPath: config.FontPath})
	if err != nil {
		return fmt.Errorf("creating trace renderer: %w", err)
	}
	defer renderer.Close()

	logger.Info("rendering trace",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
		))

	img, err := renderer.Render(trace)
	if err != nil {
		return fmt.Errorf("rendering trace: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
