package services

import (
	"context"
	"errors"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// operationDescriptions are the human labels of the supported operations.
var operationDescriptions = map[string]string{
	models.OperationCompleteProcess:  "Procesamiento completo (carga, conversión, reconocimiento, análisis y validación)",
	models.OperationRecognizeExtract: "Reconocimiento de páginas, análisis y validación",
	models.OperationExtract:          "Análisis de estados contables y validación",
	models.OperationValidate:         "Validación de estados contables",
}

// DescribeOperation returns a readable label for logs.
func DescribeOperation(op string) string {
	if d, ok := operationDescriptions[op]; ok {
		return d
	}
	return "Operación desconocida: " + op
}

// IsKnownOperation reports whether op is one of the supported operations.
func IsKnownOperation(op string) bool {
	_, ok := operationDescriptions[op]
	return ok
}

// Router picks the entry node of a run. It reads the document but never
// writes anything.
type Router struct {
	store DocumentStore
}

func NewRouter(store DocumentStore) *Router {
	return &Router{store: store}
}

// Route checks the operation preconditions and returns the entry node with
// the stored document it inspected. The document is nil for a new upload.
func (r *Router) Route(ctx context.Context, st State) (Node, *models.Document, error) {
	if !IsKnownOperation(st.Operation) {
		return NodeError, nil, invalidRequest("operación desconocida: %q", st.Operation)
	}

	if st.Operation == models.OperationCompleteProcess {
		if st.Filename == "" || len(st.RawBytes) == 0 {
			return NodeError, nil, preconditionFailed("el procesamiento completo requiere el nombre y el contenido del archivo")
		}
		if st.DocumentID == "" {
			return NodeConversion, nil, nil
		}
	}

	doc, err := r.store.Get(ctx, st.DocumentID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return NodeError, nil, newError(KindNotFound, "", "documento no encontrado: "+st.DocumentID, err)
		}
		return NodeError, nil, externalError("", "no se pudo leer el documento", err)
	}

	switch st.Operation {
	case models.OperationCompleteProcess:
		return NodeConversion, doc, nil
	case models.OperationRecognizeExtract:
		if len(doc.Pages) == 0 {
			return NodeError, doc, preconditionFailed("el documento no tiene páginas convertidas")
		}
		for _, p := range doc.Pages {
			if p.ImagePath == "" {
				return NodeError, doc, preconditionFailed("la página %d no tiene imagen", p.Number)
			}
		}
		return NodeRecognition, doc, nil
	case models.OperationExtract:
		for _, p := range doc.Pages {
			if p.Recognized != nil {
				return NodeExtraction, doc, nil
			}
		}
		return NodeError, doc, preconditionFailed("el documento no tiene páginas reconocidas")
	default: // validate
		if doc.BalanceData == nil && doc.IncomeData == nil && doc.CompanyInfo == nil {
			return NodeError, doc, preconditionFailed("el documento no tiene datos extraídos para validar")
		}
		return NodeValidation, doc, nil
	}
}
