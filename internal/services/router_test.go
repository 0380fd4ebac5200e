package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

func TestRoute_ExtractNeedsRecognizedPage(t *testing.T) {
	store := newMemStore()
	router := NewRouter(store)
	st := State{Operation: models.OperationExtract, DocumentID: "doc-1"}

	store.put(t, "doc-1", recognizedDoc(page(1, nil), page(2, nil)))
	node, _, err := router.Route(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, NodeError, node)
	assert.True(t, errors.Is(err, ErrPreconditionFailed))

	store.put(t, "doc-1", recognizedDoc(page(1, nil), page(2, &models.RecognizedInfo{})))
	node, doc, err := router.Route(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, NodeExtraction, node)
	require.NotNil(t, doc)
	assert.Len(t, doc.Pages, 2)
}

func TestRoute(t *testing.T) {
	withImages := recognizedDoc(page(1, nil))
	missingImage := recognizedDoc(page(1, nil), models.Page{Number: 2})
	withData := recognizedDoc()
	withData.CompanyInfo = &models.CompanyInfo{Name: "ACME"}

	tests := []struct {
		name     string
		stored   *models.Document
		state    State
		wantNode Node
		wantKind Kind
	}{
		{
			name:     "unknown operation",
			state:    State{Operation: "shred", DocumentID: "doc-1"},
			wantNode: NodeError,
			wantKind: KindInvalidRequest,
		},
		{
			name:     "new upload skips lookup",
			state:    State{Operation: models.OperationCompleteProcess, Filename: "a.pdf", RawBytes: []byte("x")},
			wantNode: NodeConversion,
		},
		{
			name:     "upload without bytes",
			state:    State{Operation: models.OperationCompleteProcess, Filename: "a.pdf"},
			wantNode: NodeError,
			wantKind: KindPreconditionFailed,
		},
		{
			name:     "upload onto existing record",
			stored:   recognizedDoc(),
			state:    State{Operation: models.OperationCompleteProcess, DocumentID: "doc-1", Filename: "a.pdf", RawBytes: []byte("x")},
			wantNode: NodeConversion,
		},
		{
			name:     "missing document",
			state:    State{Operation: models.OperationValidate, DocumentID: "doc-1"},
			wantNode: NodeError,
			wantKind: KindNotFound,
		},
		{
			name:     "recognize with images",
			stored:   withImages,
			state:    State{Operation: models.OperationRecognizeExtract, DocumentID: "doc-1"},
			wantNode: NodeRecognition,
		},
		{
			name:     "recognize without pages",
			stored:   recognizedDoc(),
			state:    State{Operation: models.OperationRecognizeExtract, DocumentID: "doc-1"},
			wantNode: NodeError,
			wantKind: KindPreconditionFailed,
		},
		{
			name:     "recognize with a page lacking its image",
			stored:   missingImage,
			state:    State{Operation: models.OperationRecognizeExtract, DocumentID: "doc-1"},
			wantNode: NodeError,
			wantKind: KindPreconditionFailed,
		},
		{
			name:     "validate with company info only",
			stored:   withData,
			state:    State{Operation: models.OperationValidate, DocumentID: "doc-1"},
			wantNode: NodeValidation,
		},
		{
			name:     "validate without data",
			stored:   recognizedDoc(),
			state:    State{Operation: models.OperationValidate, DocumentID: "doc-1"},
			wantNode: NodeError,
			wantKind: KindPreconditionFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			if tt.stored != nil {
				store.put(t, "doc-1", tt.stored)
			}
			node, _, err := NewRouter(store).Route(context.Background(), tt.state)
			assert.Equal(t, tt.wantNode, node)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}
}

func TestRoute_NeverWrites(t *testing.T) {
	store := newMemStore()
	store.put(t, "doc-1", recognizedDoc(page(1, &models.RecognizedInfo{})))
	store.updateErr = errors.New("read only")

	_, _, err := NewRouter(store).Route(context.Background(), State{Operation: models.OperationExtract, DocumentID: "doc-1"})
	assert.NoError(t, err)
	assert.Empty(t, store.history("doc-1"))
}

func TestDescribeOperation(t *testing.T) {
	assert.Equal(t, "Validación de estados contables", DescribeOperation(models.OperationValidate))
	assert.Equal(t, "Operación desconocida: nope", DescribeOperation("nope"))
}
