// Package app wires the configured cloud clients into a running pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/financialstatementflow/internal/config"
	"github.com/Lllllllleong/financialstatementflow/internal/gcp"
	"github.com/Lllllllleong/financialstatementflow/internal/models"
	"github.com/Lllllllleong/financialstatementflow/internal/notify"
	"github.com/Lllllllleong/financialstatementflow/internal/raster"
	"github.com/Lllllllleong/financialstatementflow/internal/services"
	"github.com/Lllllllleong/financialstatementflow/internal/tenant"
)

// App owns the clients, the graph, the queue and its worker.
type App struct {
	Config  *config.Config
	Store   *gcp.DocumentStore
	Tenants *tenant.Registry
	Graph   *services.Graph
	Queue   *services.Queue
	Worker  *services.Worker

	storage *storage.Client
	closers []func() error
}

// New connects every client named by cfg. On error, whatever was opened is closed.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, fsClient.Close)
	a.Store = gcp.NewDocumentStore(fsClient, cfg.DocumentsCollection)

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	a.closers = append(a.closers, storageClient.Close)
	a.storage = storageClient

	vertex, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, gcp.VertexOptions{
		Model:      cfg.VertexModel,
		MaxRetries: cfg.ModelMaxRetries,
		Timeout:    cfg.ModelTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, vertex.Close)

	var extra []byte
	if cfg.TenantProfilesFile != "" {
		if extra, err = os.ReadFile(cfg.TenantProfilesFile); err != nil {
			return nil, fmt.Errorf("failed to read tenant profiles: %w", err)
		}
	}
	a.Tenants, err = tenant.NewRegistry(gcp.NewTenantSource(fsClient, cfg.TenantsCollection), extra)
	if err != nil {
		return nil, err
	}

	notifier, err := a.newNotifier(cfg)
	if err != nil {
		return nil, err
	}

	a.Graph, err = services.NewGraph(services.Dependencies{
		Store:    a.Store,
		Blobs:    gcp.NewBlobStore(storageClient, cfg.StatementsBucket),
		Notifier: notifier,
		Vision:   vertex,
		Raster:   Rasterizer{raster.New(cfg.RasterDPI)},
		Tenants:  a.Tenants,
	}, services.Options{
		Environment:            cfg.StorageEnvironment,
		RasterBatchSize:        cfg.RasterBatchSize,
		RecognitionConcurrency: cfg.RecognitionConcurrency,
		RecognitionRate:        cfg.RecognitionRate,
	})
	if err != nil {
		return nil, err
	}

	a.Queue = services.NewQueue()
	a.Worker = services.NewWorker(a.Queue, a.Graph)
	return a, nil
}

// Submit validates a request and queues it.
func (a *App) Submit(req models.SubmitRequest) error {
	return a.Queue.Enqueue(TaskFromRequest(req))
}

// SubmitObject downloads an uploaded PDF and queues it for complete processing.
// The uploader is read from the object metadata.
func (a *App) SubmitObject(ctx context.Context, ev models.GCSEvent) error {
	if ev.Bucket == a.Config.StatementsBucket && strings.HasPrefix(ev.Name, a.Config.StorageEnvironment+"/") {
		slog.Debug("Ignoring object written by the pipeline.", "object", ev.Name)
		return nil
	}
	task, err := TaskFromObject(ev)
	if err != nil {
		return err
	}
	task.RawBytes, err = gcp.NewBlobStore(a.storage, ev.Bucket).Get(ctx, ev.Name)
	if err != nil {
		return err
	}
	return a.Queue.Enqueue(task)
}

// TaskFromRequest maps an HTTP submission to a task.
func TaskFromRequest(req models.SubmitRequest) services.Task {
	return services.Task{
		Operation:  req.Operation,
		DocumentID: req.DocumentID,
		Requester:  services.Requester{ID: req.UserID, Email: req.UserEmail},
		Filename:   req.Filename,
		RawBytes:   req.Content,
	}
}

// TaskFromObject maps a finalized object to a complete_process task without its bytes.
func TaskFromObject(ev models.GCSEvent) (services.Task, error) {
	if ev.Bucket == "" || ev.Name == "" {
		return services.Task{}, fmt.Errorf("object event without bucket or name")
	}
	userID := ev.Metadata["userId"]
	if userID == "" {
		return services.Task{}, fmt.Errorf("object %s has no userId metadata", ev.Name)
	}
	return services.Task{
		Operation:  models.OperationCompleteProcess,
		DocumentID: ev.Metadata["documentId"],
		Requester:  services.Requester{ID: userID, Email: ev.Metadata["userEmail"]},
		Filename:   path.Base(ev.Name),
	}, nil
}

// newNotifier returns the Redis publisher, or a log-only one when Redis is not configured.
func (a *App) newNotifier(cfg *config.Config) (services.Notifier, error) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR not set, status events will only be logged.")
		return notify.LogPublisher{}, nil
	}
	pub, err := notify.NewRedisPublisher(notify.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// Close releases every client. The worker must be stopped first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Rasterizer adapts raster.Rasterizer to the graph's interface.
type Rasterizer struct {
	*raster.Rasterizer
}

func (r Rasterizer) Open(path string) (services.PageSource, error) {
	doc, err := r.Rasterizer.Open(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
