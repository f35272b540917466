package app

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"hotfolder/internal/config"
	"hotfolder/internal/services"
	"hotfolder/internal/store"
	"hotfolder/internal/store/bucket"
	"hotfolder/internal/store/ledger"
)

type App struct {
	Config *config.Config

	// --- Stores ---
	Ledger  *ledger.Store
	Storage store.ObjectStore // set by InitGarment

	BatchAPIProvider services.BatchAPIProvider

	// --- Initialized Services ---
	BatchService   *services.BatchService
	AgentsService  *services.AgentsService
	GarmentService *services.GarmentService // set by InitGarment

	closers []io.Closer
}

// NewApp builds the stores and services every command shares. Nothing here
// touches the network; the bucket is connected lazily by InitGarment.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	app.initLedger()
	if err := app.initBatchAPIProvider(ctx); err != nil {
		return nil, err
	}
	app.initCoreServices()

	log.Debug("Application initialization complete.")
	return app, nil
}

// AddCloser registers a resource released by Close.
func (a *App) AddCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Close releases registered resources in reverse order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// --- Private Helper Methods ---

func (a *App) initLedger() {
	a.Ledger = ledger.New(a.Config.Agents.StateFile)
}

func (a *App) initBatchAPIProvider(ctx context.Context) error {
	provider, err := services.NewGeminiBatchProvider(ctx, a.Config.Agents.APIKey)
	if err != nil {
		return fmt.Errorf("init batch API provider: %w", err)
	}
	a.BatchAPIProvider = provider
	return nil
}

func (a *App) initCoreServices() {
	a.BatchService = services.NewBatchService(a.Ledger)
	a.AgentsService = services.NewAgentsService(a.Ledger, a.BatchAPIProvider, a.Config.Agents)
}

// InitGarment connects the bucket and builds the garment workflow.
func (a *App) InitGarment(ctx context.Context) error {
	if a.GarmentService != nil {
		return nil
	}
	sc := a.Config.Storage
	storage, err := bucket.NewStorage(ctx, &bucket.Config{
		Endpoint:     sc.Endpoint,
		AccessKey:    sc.AccessKey,
		SecretKey:    sc.SecretKey,
		Bucket:       sc.Bucket,
		Region:       sc.Region,
		UseSSL:       sc.UseSSL,
		CreateBucket: sc.CreateBucket,
	})
	if err != nil {
		return fmt.Errorf("init bucket storage: %w", err)
	}
	a.Storage = storage

	gc := a.Config.Garment
	a.GarmentService = services.NewGarmentService(
		gc,
		storage,
		services.NewAppLauncher(gc.OpenCommand, gc.FilterApp),
		services.NewHTTPNotifier(gc.APIURL, nil),
	)
	log.Debugf("Garment workflow initialized (bucket %s)", storage.Bucket())
	return nil
}
