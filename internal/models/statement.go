package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StatementData is the extracted content of a balance sheet or an income statement.
// Balance data fills the three balance detail sections; income data fills IncomeDetails.
type StatementData struct {
	GeneralInfo      GeneralInfo  `json:"informacion_general"`
	KeyFigures       KeyFigures   `json:"resultados_principales"`
	AssetDetails     []DetailLine `json:"detalles_activo,omitempty"`
	LiabilityDetails []DetailLine `json:"detalles_pasivo,omitempty"`
	EquityDetails    []DetailLine `json:"detalles_patrimonio_neto,omitempty"`
	IncomeDetails    []DetailLine `json:"detalles_estado_resultados,omitempty"`
}

// GeneralInfo carries the company name and the two reporting period dates (YYYY-MM-DD).
type GeneralInfo struct {
	Company       string `json:"empresa,omitempty"`
	CurrentPeriod string `json:"periodo_actual"`
	PriorPeriod   string `json:"periodo_anterior,omitempty"`
}

// KeyFigure is one aggregate total used by the validator.
type KeyFigure struct {
	ConceptCode   string  `json:"concepto_code"`
	Label         string  `json:"concepto,omitempty"`
	CurrentAmount float64 `json:"monto_actual"`
	PriorAmount   float64 `json:"monto_anterior"`
}

// DetailLine is a verbatim line item copied from the statement.
type DetailLine struct {
	Label         string  `json:"concepto"`
	CurrentAmount float64 `json:"monto_actual"`
	PriorAmount   float64 `json:"monto_anterior"`
}

// KeyFigures holds either the canonical list of items or, for records written
// before the list shape existed, the flat "<concept>_actual" / "<concept>_anterior" map.
type KeyFigures struct {
	Items  []KeyFigure
	Legacy map[string]float64
}

// IsLegacy reports whether the figures came from the flat-fields shape.
func (k KeyFigures) IsLegacy() bool {
	return k.Items == nil && k.Legacy != nil
}

// MarshalJSON writes the list shape, or the flat map for untouched legacy records.
func (k KeyFigures) MarshalJSON() ([]byte, error) {
	if k.IsLegacy() {
		return json.Marshal(k.Legacy)
	}
	if k.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(k.Items)
}

// UnmarshalJSON accepts both stored shapes.
func (k *KeyFigures) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*k = KeyFigures{}
		return nil
	}
	switch trimmed[0] {
	case '[':
		var items []KeyFigure
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("decode key figures list: %w", err)
		}
		*k = KeyFigures{Items: items}
	case '{':
		raw := map[string]*float64{}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("decode legacy key figures: %w", err)
		}
		legacy := make(map[string]float64, len(raw))
		for field, v := range raw {
			if v != nil {
				legacy[field] = *v
			}
		}
		*k = KeyFigures{Legacy: legacy}
	default:
		return fmt.Errorf("unexpected key figures shape %q", trimmed[:1])
	}
	return nil
}

// Validation is the persisted outcome of the accounting checks.
type Validation struct {
	Status   string   `json:"status"`
	Messages []string `json:"message"`
}

// ProcessingTime records per-stage wall clock durations in seconds.
type ProcessingTime struct {
	UploadConvert *float64 `json:"upload_convert"`
	Recognize     *float64 `json:"recognize"`
	Extract       *float64 `json:"extract"`
	Validation    *float64 `json:"validation"`
	Total         *float64 `json:"total"`
}

// UpdateTotal recomputes Total as the sum of the stage durations that are set.
func (p *ProcessingTime) UpdateTotal() {
	var sum float64
	found := false
	for _, v := range []*float64{p.UploadConvert, p.Recognize, p.Extract, p.Validation} {
		if v != nil && *v >= 0 {
			sum += *v
			found = true
		}
	}
	if !found {
		p.Total = nil
		return
	}
	p.Total = &sum
}
