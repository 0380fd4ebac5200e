package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
	"github.com/Lllllllleong/financialstatementflow/internal/tenant"
)

// DocumentStore reads and patches statement records.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*models.Document, error)
	Create(ctx context.Context, doc *models.Document) (string, error)
	Update(ctx context.Context, id string, patch models.Patch) error
}

// BlobStore holds the uploaded PDFs and the page images.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// PutIfAbsent reports false without error when the object already exists.
	PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Notifier pushes status events to a requester. Delivery is best effort.
type Notifier interface {
	Publish(ctx context.Context, requesterID string, ev models.StatusEvent) error
}

// Vision is the model capability used to classify and read pages.
type Vision interface {
	RecognizePage(ctx context.Context, image models.ImagePart) (*models.RecognizedInfo, error)
	ExtractBalance(ctx context.Context, instructions string, concepts []string, images []models.ImagePart) (*models.StatementData, error)
	ExtractIncome(ctx context.Context, instructions string, concepts []string, images []models.ImagePart) (*models.StatementData, error)
	ExtractCompanyInfo(ctx context.Context, instructions string, images []models.ImagePart) (*models.CompanyInfo, error)
}

// Rasterizer validates PDFs, renders their pages and rotates page images.
type Rasterizer interface {
	Inspect(path string) (int, error)
	Open(path string) (PageSource, error)
	Rotate(png []byte, clockwiseDegrees int) ([]byte, error)
}

// PageSource renders the pages of one open PDF. It is used from a single goroutine.
type PageSource interface {
	RenderPNG(index int) ([]byte, error)
	Close() error
}

// Tenants resolves tenant ids and profiles.
type Tenants interface {
	TenantForEmail(email string) string
	Profile(ctx context.Context, tenantID string) (*tenant.Profile, error)
}

// Dependencies are the collaborators of a Graph.
type Dependencies struct {
	Store    DocumentStore
	Blobs    BlobStore
	Notifier Notifier
	Vision   Vision
	Raster   Rasterizer
	Tenants  Tenants
}

// Options tunes the stages.
type Options struct {
	// Environment is the first segment of every blob key.
	Environment            string
	RasterBatchSize        int
	RecognitionConcurrency int
	// RecognitionRate is the maximum number of recognition calls per second.
	RecognitionRate float64
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		Environment:            "dev",
		RasterBatchSize:        3,
		RecognitionConcurrency: 15,
		RecognitionRate:        2.5,
	}
}

// Graph runs the processing stages of one document at a time.
type Graph struct {
	deps   Dependencies
	router *Router
	opts   Options
}

// NewGraph checks the dependencies and returns a ready Graph.
func NewGraph(deps Dependencies, opts Options) (*Graph, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("NewGraph: document store is required")
	case deps.Blobs == nil:
		return nil, fmt.Errorf("NewGraph: blob store is required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("NewGraph: notifier is required")
	case deps.Vision == nil:
		return nil, fmt.Errorf("NewGraph: vision capability is required")
	case deps.Raster == nil:
		return nil, fmt.Errorf("NewGraph: rasterizer is required")
	case deps.Tenants == nil:
		return nil, fmt.Errorf("NewGraph: tenant registry is required")
	}
	def := DefaultOptions()
	if opts.Environment == "" {
		opts.Environment = def.Environment
	}
	if opts.RasterBatchSize < 1 {
		opts.RasterBatchSize = def.RasterBatchSize
	}
	if opts.RecognitionConcurrency < 1 {
		opts.RecognitionConcurrency = def.RecognitionConcurrency
	}
	if opts.RecognitionRate <= 0 {
		opts.RecognitionRate = def.RecognitionRate
	}
	return &Graph{deps: deps, router: NewRouter(deps.Store), opts: opts}, nil
}

// blobPrefix is the key prefix of every object of a document.
func (g *Graph) blobPrefix(st State) string {
	tenantID := st.TenantID
	if tenantID == "" {
		tenantID = tenant.DefaultID
	}
	return fmt.Sprintf("%s/%s/documents/%s", g.opts.Environment, tenantID, st.DocumentID)
}
