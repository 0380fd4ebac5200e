// Package finance reads extracted key figures and checks them against the
// fundamental accounting identities.
package finance

import (
	"sort"
	"strings"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// Period selects the column of a statement.
type Period string

const (
	Current Period = "actual"
	Prior   Period = "anterior"
)

// Table gives uniform access to key figures by concept code.
type Table interface {
	// Get returns the amount for concept in period and whether it was reported.
	Get(concept string, period Period) (float64, bool)
	Has(concept string) bool
	Concepts() []string
}

// NewTable picks the adapter matching the stored shape. A nil statement yields nil.
func NewTable(data *models.StatementData) Table {
	if data == nil {
		return nil
	}
	if data.KeyFigures.IsLegacy() {
		return NewLegacyTable(data.KeyFigures.Legacy)
	}
	return NewItemsTable(data.KeyFigures.Items)
}

// ItemsTable is the adapter for the canonical list of items.
type ItemsTable struct {
	order []string
	items map[string]models.KeyFigure
}

// NewItemsTable indexes items by concept code. The first item wins on duplicates.
func NewItemsTable(items []models.KeyFigure) *ItemsTable {
	t := &ItemsTable{items: make(map[string]models.KeyFigure, len(items))}
	for _, it := range items {
		if it.ConceptCode == "" {
			continue
		}
		if _, dup := t.items[it.ConceptCode]; dup {
			continue
		}
		t.items[it.ConceptCode] = it
		t.order = append(t.order, it.ConceptCode)
	}
	return t
}

func (t *ItemsTable) Get(concept string, period Period) (float64, bool) {
	it, ok := t.items[concept]
	if !ok {
		return 0, false
	}
	switch period {
	case Current:
		return it.CurrentAmount, true
	case Prior:
		return it.PriorAmount, true
	}
	return 0, false
}

func (t *ItemsTable) Has(concept string) bool {
	_, ok := t.items[concept]
	return ok
}

func (t *ItemsTable) Concepts() []string {
	return append([]string(nil), t.order...)
}

// LegacyTable is the adapter for records stored as "<concept>_<period>" fields.
type LegacyTable struct {
	fields map[string]float64
}

func NewLegacyTable(fields map[string]float64) *LegacyTable {
	return &LegacyTable{fields: fields}
}

func (t *LegacyTable) Get(concept string, period Period) (float64, bool) {
	v, ok := t.fields[concept+"_"+string(period)]
	return v, ok
}

func (t *LegacyTable) Has(concept string) bool {
	_, cur := t.fields[concept+"_"+string(Current)]
	_, prior := t.fields[concept+"_"+string(Prior)]
	return cur || prior
}

// Concepts returns the concept codes sorted, since map order carries no meaning.
func (t *LegacyTable) Concepts() []string {
	seen := map[string]bool{}
	for field := range t.fields {
		for _, p := range []Period{Current, Prior} {
			if c, ok := strings.CutSuffix(field, "_"+string(p)); ok {
				seen[c] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
