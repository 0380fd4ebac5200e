package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/financialstatementflow/internal/app"
	"github.com/Lllllllleong/financialstatementflow/internal/config"
	"github.com/Lllllllleong/financialstatementflow/internal/models"
	"github.com/Lllllllleong/financialstatementflow/internal/services"
)

// service holds the pipeline shared by every invocation of the functions.
type service struct {
	build func() (*app.App, error)

	once     sync.Once
	pipeline *app.App
	initErr  error
}

func init() {
	// --- Set up structured logging ---
	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	s := &service{build: func() (*app.App, error) { return buildPipeline(logLevel) }}
	functions.HTTP("SubmitDocument", s.submitDocument)
	functions.CloudEvent("OnStatementUploaded", s.onStatementUploaded)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}
	port := config.GetEnv("PORT", "8080")
	slog.Info("Starting functions framework", "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("Functions framework stopped", "error", err)
		os.Exit(1)
	}
}

// buildPipeline loads the configuration, builds the clients and starts the worker.
func buildPipeline(level *slog.LevelVar) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level.Set(cfg.LogLevel)

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Worker.Start(context.Background()); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// initPipeline builds the pipeline on first use.
func (s *service) initPipeline() (*app.App, error) {
	s.once.Do(func() {
		s.pipeline, s.initErr = s.build()
	})
	return s.pipeline, s.initErr
}

// submitDocument queues a pipeline task and answers once it is accepted.
func (s *service) submitDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	a, err := s.initPipeline()
	if err != nil {
		slog.Error("CRITICAL: Pipeline initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	if err := a.Submit(req); err != nil {
		slog.Warn("Rejected submission", "operation", req.Operation, "documentId", req.DocumentID, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	res := models.SubmitResponse{Status: "queued", DocumentID: req.DocumentID, QueueSize: a.Queue.Len()}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// onStatementUploaded queues a complete run for a PDF uploaded to a bucket.
func (s *service) onStatementUploaded(ctx context.Context, e cloudevents.Event) error {
	a, err := s.initPipeline()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	if err := a.SubmitObject(ctx, gcsEvent); err != nil {
		slog.Error("Failed to queue uploaded statement", "bucket", gcsEvent.Bucket, "object", gcsEvent.Name, "error", err)
		return err
	}
	return nil
}
