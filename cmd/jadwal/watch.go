package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smpn3pacet/jadwal/internal/config"
	"github.com/smpn3pacet/jadwal/internal/state"
	"github.com/smpn3pacet/jadwal/internal/syncer"
	"github.com/smpn3pacet/jadwal/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Follow remote changes and keep the local cache current",
	Long: `Load the remote document and keep following it until interrupted.

With the realtime backend and subscribe enabled, changes arrive as they
happen; otherwise the document is fetched every poll_interval. Every
remote change is stored in the local cache.

Changes to the endpoint override (jadwal config set-endpoint) apply
immediately. Changes to config.yaml need a restart.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(true)
		if err != nil {
			fatalf("%v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logger := newLogger("watch")

		stopStatus := a.session.OnChange(func(st syncer.State) {
			line := fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), ui.RenderStatus(st.Status.String()))
			if st.LastError != nil && st.Status == syncer.StatusError {
				line += " " + ui.RenderMuted(st.LastError.Error())
			}
			fmt.Println(line)
		})
		defer stopStatus()

		stopCache := a.container.Observe(func(ch state.Change) {
			if ch.Origin != state.OriginRemote {
				return
			}
			raw, ok := a.container.Section(ch.Section)
			if !ok {
				return
			}
			if err := a.cache.SaveSection(ctx, ch.Section, raw); err != nil {
				logger.Printf("Failed to cache %s: %v", ch.Section, err)
				return
			}
			fmt.Printf("%s %s updated\n", time.Now().Format("15:04:05"), ch.Section)
		})
		defer stopCache()

		phase := a.load(ctx)
		fmt.Printf("%s Loaded: %s\n", ui.RenderAccent("👀"), phase)

		watcher, err := config.NewWatcher()
		if err != nil {
			logger.Printf("Config changes will not be noticed: %v", err)
		} else if err := watcher.Start(a.cfg.Dir); err != nil {
			logger.Printf("Config changes will not be noticed: %v", err)
			watcher = nil
		}

		polling := false
		startPolling := func() {
			if polling || offline || a.coord.Subscribed() || a.resolver.Endpoint() == "" {
				return
			}
			polling = true
			go a.coord.Poll(ctx, a.cfg.PollInterval)
			fmt.Printf("Polling every %v\n", a.cfg.PollInterval)
		}
		startPolling()
		fmt.Println("Press Ctrl+C to stop...")

		var events <-chan config.Event
		var errs <-chan error
		if watcher != nil {
			events = watcher.Events()
			errs = watcher.Errors()
		}

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				switch ev.Kind {
				case config.KindEndpoint:
					if err := a.resolver.Reload(); err != nil {
						logger.Printf("Failed to reload endpoint: %v", err)
						continue
					}
					endpoint, layer := a.resolver.Resolve()
					logger.Printf("Endpoint is now %q (%s)", endpoint, layer)
					if endpoint == "" || offline {
						continue
					}
					if err := a.coord.Refresh(ctx); err != nil {
						logger.Printf("Refresh failed: %v", err)
					}
					startPolling()
				case config.KindSettings:
					logger.Printf("%s changed; restart to apply", ev.Path)
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Printf("Watch error: %v", err)
			}
		}

		fmt.Println("\nStopping...")
		if watcher != nil {
			_ = watcher.Stop()
		}
		err = a.finish(context.Background())
		a.close()
		if err != nil {
			fatalf("failed to update cache: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
