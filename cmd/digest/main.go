package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/logging"
	"github.com/lysyi3m/rss-digest/app/mailer"
	"github.com/lysyi3m/rss-digest/app/runner"
	"github.com/lysyi3m/rss-digest/app/tasks"
)

type cliOptions struct {
	FeedURLs    []string `long:"feed-url" description:"Fetch only this feed URL for this run (repeatable)"`
	Preview     bool     `long:"preview" description:"Compose a preview file without archiving, sending or marking articles"`
	PreviewPath string   `long:"preview-path" default:"digest_preview.html" description:"Where --preview writes the digest HTML"`
}

func main() {
	os.Exit(run())
}

func run() int {
	appConfig, rest, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if appConfig == nil {
		return runner.ExitOK
	}

	var opts cliOptions
	if _, err := flags.NewParser(&opts, flags.PassDoubleDash).ParseArgs(rest); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logging.Setup(appConfig.Debug)

	slog.Info("Starting rss-digest", "version", appConfig.Version, "dry_run", appConfig.DryRun)

	db, err := database.Connect(appConfig.DBURL)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return runner.ExitStoreInit
	}
	defer db.Close()

	components, err := runner.Wire(appConfig, db)
	if err != nil {
		slog.Error("Failed to initialize components", "error", err)
		return runner.ExitCompose
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if appConfig.FeedsFile != "" {
		if err := tasks.NewSyncFeedsTask(components.ConfigCache, components.Feeds).Execute(ctx); err != nil {
			slog.Warn("Failed to sync feeds file", "path", appConfig.FeedsFile, "error", err)
		}
	}

	r := components.Runner.WithOptions(func(o *runner.Options) {
		o.FeedURLs = cfg.SplitList(opts.FeedURLs...)
		o.Preview = opts.Preview
	})

	res := r.Run(ctx)

	if opts.Preview {
		if err := writePreview(appConfig, opts.PreviewPath, res); err != nil {
			slog.Error("Failed to write preview", "error", err)
			return 1
		}
	}

	if res.Err != nil {
		slog.Error("Digest run failed", "run_id", res.RunID, "state", string(res.State), "code", res.Code, "error", res.Err)
	}

	return res.Code
}

func writePreview(c *cfg.Cfg, path string, res runner.Result) error {
	if res.Digest == nil {
		fmt.Println("No new items. Nothing to preview.")
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, []byte(res.Digest.HTML), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", abs, err)
	}

	fmt.Println("Subject:", res.Digest.Subject)
	fmt.Println("Items:", res.Digest.ItemCount)
	fmt.Println("Recipients (masked):", strings.Join(mailer.MaskRecipients(c.EmailTo), ", "))
	fmt.Println("DRY_RUN:", c.DryRun)
	fmt.Println("SKIP_SMTP_AUTH:", c.SkipSMTPAuth)
	fmt.Println("SMTP_SERVER:", c.SMTPServer, "SMTP_PORT:", c.SMTPPort)
	fmt.Println("Preview:", abs)

	return nil
}
