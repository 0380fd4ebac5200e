package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
	"github.com/Lllllllleong/financialstatementflow/internal/tenant"
)

// ErrDocumentNotFound is returned when a statement record does not exist.
var ErrDocumentNotFound = models.ErrDocumentNotFound

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// DocumentStore reads and patches statement records in a Firestore collection.
// Records are converted through their JSON form so field names follow the
// json tags of the models package.
type DocumentStore struct {
	client     *firestore.Client
	collection string
}

// NewDocumentStore returns a store over the given collection.
func NewDocumentStore(client *firestore.Client, collection string) *DocumentStore {
	return &DocumentStore{client: client, collection: collection}
}

// Get loads a statement record by id.
func (s *DocumentStore) Get(ctx context.Context, id string) (*models.Document, error) {
	if id == "" {
		return nil, ErrDocumentNotFound
	}
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%s: %w", id, ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}

	raw, err := json.Marshal(snap.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = snap.Ref.ID
	return &doc, nil
}

// Create stores a new record and returns its generated id.
func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) (string, error) {
	data, err := toValue(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode new document: %w", err)
	}
	fields, _ := data.(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	// Keep timestamps native so they can be ordered and queried.
	fields["upload_date"] = doc.UploadDate

	ref, _, err := s.client.Collection(s.collection).Add(ctx, fields)
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	return ref.ID, nil
}

// Update overwrites the patched fields of a record.
func (s *DocumentStore) Update(ctx context.Context, id string, patch models.Patch) error {
	if len(patch) == 0 {
		return nil
	}
	paths := make([]string, 0, len(patch))
	for path := range patch {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	updates := make([]firestore.Update, 0, len(patch))
	for _, path := range paths {
		value, err := toValue(patch[path])
		if err != nil {
			return fmt.Errorf("failed to encode field %s: %w", path, err)
		}
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}

	if _, err := s.client.Collection(s.collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s: %w", id, ErrDocumentNotFound)
		}
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return nil
}

// toValue converts a model value into plain maps, slices and scalars.
func toValue(v any) (any, error) {
	switch v := v.(type) {
	case nil, string, bool, int, int64, float64, time.Time:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// tenantRecord is the stored shape of a tenant override.
type tenantRecord struct {
	Name          string            `firestore:"tenant_name"`
	Status        string            `firestore:"status"`
	BalanceFields map[string]string `firestore:"balance_main_results_fields"`
	IncomeFields  map[string]string `firestore:"income_statement_main_results_fields"`
	Prompts       map[string]string `firestore:"prompts"`
}

// TenantSource reads tenant overrides from a Firestore collection keyed by tenant id.
type TenantSource struct {
	client     *firestore.Client
	collection string
}

// NewTenantSource returns a tenant.Source backed by Firestore.
func NewTenantSource(client *firestore.Client, collection string) *TenantSource {
	return &TenantSource{client: client, collection: collection}
}

// Lookup returns the stored override of a tenant or nil when none exists.
func (s *TenantSource) Lookup(ctx context.Context, tenantID string) (*tenant.Profile, error) {
	snap, err := s.client.Collection(s.collection).Doc(tenantID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tenant %s: %w", tenantID, err)
	}
	var rec tenantRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode tenant %s: %w", tenantID, err)
	}
	return &tenant.Profile{
		ID:            tenantID,
		Name:          rec.Name,
		Status:        rec.Status,
		BalanceFields: fieldsOf(rec.BalanceFields),
		IncomeFields:  fieldsOf(rec.IncomeFields),
		Prompts: tenant.Prompts{
			Balance:     rec.Prompts["balance"],
			Income:      rec.Prompts["income"],
			CompanyInfo: rec.Prompts["company_info"],
		},
	}, nil
}

func fieldsOf(m map[string]string) []tenant.Field {
	keys := make([]string, 0, len(m))
	for code := range m {
		keys = append(keys, code)
	}
	sort.Strings(keys)
	out := make([]tenant.Field, 0, len(keys))
	for _, code := range keys {
		out = append(out, tenant.Field{Code: code, Label: m[code]})
	}
	return out
}
