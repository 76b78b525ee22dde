package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/smpn3pacet/jadwal/internal/cache"
	"github.com/smpn3pacet/jadwal/internal/config"
	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
	"github.com/smpn3pacet/jadwal/internal/remote/realtime"
	"github.com/smpn3pacet/jadwal/internal/remote/sheet"
	"github.com/smpn3pacet/jadwal/internal/state"
	"github.com/smpn3pacet/jadwal/internal/syncer"
)

// loadTimeout bounds the initial remote load of a command.
const loadTimeout = 45 * time.Second

// app is one command's session: configuration, local cache, remote store,
// state container and the sync components wired together.
type app struct {
	cfg       *config.Config
	resolver  *config.EndpointResolver
	cache     *cache.Cache
	store     remote.Store
	container *state.Container
	session   *syncer.Session
	coord     *syncer.Coordinator
	bridge    *syncer.Bridge
	role      syncer.Role
}

// resolveConfigDir returns the --config-dir flag or ./.jadwal.
func resolveConfigDir() string {
	if configDir != "" {
		return configDir
	}
	return config.DirName
}

// loadConfig reads the configuration and the endpoint resolver.
func loadConfig() (*config.Config, *config.EndpointResolver, error) {
	cfg, err := config.Load(resolveConfigDir())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	resolver, err := config.ResolverFor(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, resolver, nil
}

// newStore builds the configured backend. Offline mode gets a backend with
// no endpoint, which the coordinator treats as local-only.
func newStore(cfg *config.Config, endpoint remote.EndpointSource) remote.Store {
	if offline {
		endpoint = remote.StaticEndpoint("")
	}
	if cfg.Backend == config.BackendRealtime {
		rc := realtime.DefaultConfig(endpoint)
		rc.Attempts = cfg.RetryAttempts
		rc.RetryDelay = cfg.RetryDelay
		rc.Logger = newLogger("realtime")
		return realtime.New(rc)
	}
	sc := sheet.DefaultConfig(endpoint)
	sc.Attempts = cfg.RetryAttempts
	sc.RetryDelay = cfg.RetryDelay
	sc.Logger = newLogger("sheet")
	return sheet.New(sc)
}

// openApp opens the cache and builds the container from the cached
// document layered over the defaults. Nothing is loaded from the remote
// store until load.
func openApp(subscribe bool) (*app, error) {
	cfg, resolver, err := loadConfig()
	if err != nil {
		return nil, err
	}

	role, err := syncer.ParseRole(cfg.Role)
	if err != nil {
		return nil, err
	}
	if roleFlag != "" {
		if role, err = syncer.ParseRole(roleFlag); err != nil {
			return nil, err
		}
	}

	c, err := cache.Open(filepath.Join(cfg.DataDir, cache.FileName))
	if err != nil {
		return nil, err
	}

	doc := document.MustDefaults()
	cached, err := c.Load(context.Background())
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	doc.Merge(cached)

	a := &app{
		cfg:       cfg,
		resolver:  resolver,
		cache:     c,
		store:     newStore(cfg, resolver),
		container: state.New(doc),
		session:   syncer.NewSession(),
		role:      role,
	}
	a.coord = syncer.NewCoordinator(a.store, a.container, a.session, &syncer.CoordinatorConfig{
		Subscribe: subscribe && cfg.Subscribe,
		Logger:    newLogger("sync"),
	})
	a.bridge = syncer.NewBridge(a.store, a.container, a.session, &syncer.BridgeConfig{
		Debounce:     cfg.Debounce,
		WriteTimeout: cfg.WriteTimeout,
		Role:         role,
		Logger:       newLogger("bridge"),
	})
	return a, nil
}

// load runs the load coordinator and then arms the bridge, so nothing the
// load hydrated is written back.
func (a *app) load(ctx context.Context) syncer.Phase {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	phase := a.coord.Load(ctx)
	a.bridge.Arm()
	return phase
}

// finish writes pending sections, stores the document in the cache and
// records the outcome. The returned error is the cache error; a failed
// remote write is reported through the session status.
func (a *app) finish(ctx context.Context) error {
	syncErr := a.bridge.Flush()
	if syncErr == nil && a.session.Status() == syncer.StatusError {
		syncErr = a.session.LastError()
	}

	if err := a.cache.SaveDocument(ctx, a.container.Snapshot()); err != nil {
		return err
	}
	if err := a.cache.RecordSync(ctx, a.session.Status().String(), syncErr); err != nil {
		return err
	}
	return nil
}

// close stops observing and releases the store and the cache.
func (a *app) close() {
	_ = a.bridge.Close()
	a.coord.Close()
	if closer, ok := a.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	_ = a.cache.Close()
}

// run opens an app, loads, runs fn, then finishes and prints the sync
// outcome. It is the lifecycle of every data command.
func run(fn func(ctx context.Context, a *app) error) {
	ctx := context.Background()
	a, err := openApp(false)
	if err != nil {
		fatalf("%v", err)
	}

	a.load(ctx)
	fnErr := fn(ctx, a)
	finishErr := a.finish(ctx)
	printSyncLine(a)
	a.close()

	if finishErr != nil {
		fatalf("failed to update cache: %v", finishErr)
	}
	if fnErr != nil {
		fatalf("%v", fnErr)
	}
}
