// cmd/docent/watch.go

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/docenthq/docent/internal/logging"
	"github.com/docenthq/docent/internal/watch"
	"github.com/docenthq/docent/internal/webhook"
	"github.com/docenthq/docent/plugins"
)

func cmdWatch(args []string) error {
	fs := newFlagSet("watch", "docent watch [-f FILE] [--serve ADDR] [--debounce DUR]")
	file := fs.String("f", "", "pipeline file (default: the project default pipeline)")
	serve := fs.String("serve", "", "also accept webhook deliveries on this address, e.g. 127.0.0.1:8400")
	debounce := fs.Duration("debounce", 0, "quiet period after a change before grading (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(*file, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	quiet := s.cfg.WatchDebounce()
	if *debounce > 0 {
		quiet = *debounce
	}
	paths := watchPaths(s)
	watcher := watch.New(s.pipe, paths,
		watch.WithDebounce(quiet),
		watch.WithWatchLogbook(s.book),
	)

	if *serve != "" {
		shutdown, err := startReceiver(ctx, s, *serve, watcher)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	fmt.Printf("watching %s pipeline %s, ctrl-c to stop\n", s.def.Source.Type, s.def.Name)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("stopped")
	return nil
}

// watchPaths picks the directories whose changes should trigger a run.
// Sheet pipelines watch the directory holding the sheet, so re-exported
// CSVs are picked up; PR pipelines watch the project directory and lean
// on webhooks or the initial run for anything beyond it. State writes
// under .docent never count as changes.
func watchPaths(s *session) []string {
	projectDir := s.cfg.ProjectDir
	if s.def.Source.Type == plugins.SourceSheet {
		if sheet, ok := s.def.Source.Options["path"].(string); ok && sheet != "" {
			if !filepath.IsAbs(sheet) {
				sheet = filepath.Join(projectDir, sheet)
			}
			dir := filepath.Dir(sheet)
			if dir != projectDir {
				return []string{projectDir, dir}
			}
		}
	}
	return []string{projectDir}
}

// watchRepo returns the repository whose webhook deliveries should
// trigger runs. Non-PR pipelines subscribe to every delivery, since any
// push a hook reports may update a cloned submission.
func watchRepo(def plugins.PipelineDefinition) string {
	if def.Source.Type != plugins.SourcePRs {
		return ""
	}
	repo, _ := def.Source.Options["repo"].(string)
	return repo
}

// startReceiver boots the webhook server and bridges its deliveries into
// watcher triggers. The returned function tears everything down.
func startReceiver(ctx context.Context, s *session, addr string, watcher *watch.Watcher) (func(), error) {
	lg, err := logging.New(s.cfg.ProjectDir)
	if err != nil {
		return nil, err
	}
	settings := webhook.SettingsFromConfig(s.cfg)
	settings.Addr = addr

	router := webhook.NewRouter(webhook.RouterWithLogger(lg))
	sub := router.Subscribe(watchRepo(s.def))
	go func() {
		for range sub.Deliveries {
			watcher.Trigger()
		}
	}()

	server := webhook.NewServer(settings, webhook.WithHandler(router), webhook.WithLogger(lg))
	if err := server.Start(ctx); err != nil {
		sub.Close()
		lg.Close()
		return nil, err
	}
	fmt.Printf("webhook receiver on %s\n", server.BaseURL())
	s.book.Info("webhook receiver on %s", server.BaseURL())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.book.Error("webhook shutdown: %v", err)
		}
		sub.Close()
		lg.Close()
	}, nil
}
