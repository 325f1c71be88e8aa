package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/config"
)

type result struct {
	path    string
	outcome signedupload.UploadOutcome
	err     error
}

func main() {
	envPrefix := flag.String("env-prefix", "UPLOAD_", "Prefix of the environment variables holding credentials and policy")
	host := flag.String("host", "", "Upload endpoint (overrides <prefix>HOST)")
	keyPrefix := flag.String("key-prefix", "", "Object key prefix (overrides <prefix>KEY_PREFIX)")
	accept := flag.String("accept", "", "Accept list, e.g. \"image/*,.pdf\"")
	concurrency := flag.Int("concurrency", 4, "Number of files uploaded at once")
	verbose := flag.Bool("v", false, "Log transfer progress")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] FILE...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []config.Option{config.WithEnv(*envPrefix)}
	if *host != "" {
		opts = append(opts, config.WithHost(*host))
	}
	if *keyPrefix != "" {
		opts = append(opts, config.WithKeyPrefix(*keyPrefix))
	}
	if *accept != "" {
		opts = append(opts, config.WithAccept(*accept))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	builder, err := cfg.BuildBuilder(
		signedupload.WithLogger(logger),
		signedupload.WithProgress(progressLogger(logger)),
	)
	if err != nil {
		logger.Error("Failed to create upload builder", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make([]result, flag.NArg())
	var g errgroup.Group
	g.SetLimit(*concurrency)
	for i, path := range flag.Args() {
		g.Go(func() error {
			outcome, err := upload(ctx, builder, path)
			results[i] = result{path: path, outcome: outcome, err: err}
			return nil
		})
	}
	g.Wait()

	exitCode := 0
	for _, r := range results {
		switch {
		case r.err == nil:
			fmt.Println(r.outcome.ObjectURL)
		case signedupload.IsAborted(r.err):
			logger.Warn("Upload aborted", "file", r.path)
			exitCode = 130
		default:
			logger.Error("Upload failed", "file", r.path, "err", r.err)
			if exitCode == 0 {
				exitCode = 1
			}
		}
	}
	os.Exit(exitCode)
}

func upload(ctx context.Context, b *signedupload.Builder, path string) (signedupload.UploadOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return signedupload.UploadOutcome{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return signedupload.UploadOutcome{}, err
	}
	if info.IsDir() {
		return signedupload.UploadOutcome{}, fmt.Errorf("%s is a directory", path)
	}

	return b.Upload(ctx, signedupload.File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Body: f,
	})
}

// progressLogger logs each key at most once per 10% step
func progressLogger(logger *slog.Logger) signedupload.ProgressFunc {
	var mu sync.Mutex
	steps := make(map[string]int)
	return func(p signedupload.Progress) {
		step := int(p.Ratio * 10)
		mu.Lock()
		prev, seen := steps[p.Key]
		if seen && step <= prev {
			mu.Unlock()
			return
		}
		steps[p.Key] = step
		mu.Unlock()
		logger.Debug("Upload progress", "key", p.Key, "sent", p.Sent, "total", p.Total, "percent", step*10)
	}
}
