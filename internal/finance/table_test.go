package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

func TestNewTable_PicksAdapter(t *testing.T) {
	assert.Nil(t, NewTable(nil))

	list := NewTable(&models.StatementData{KeyFigures: models.KeyFigures{
		Items: []models.KeyFigure{fig(AssetsTotal, 10, 9)},
	}})
	require.IsType(t, &ItemsTable{}, list)

	legacy := NewTable(&models.StatementData{KeyFigures: models.KeyFigures{
		Legacy: map[string]float64{"activo_total_actual": 10},
	}})
	require.IsType(t, &LegacyTable{}, legacy)

	for _, tbl := range []Table{list, legacy} {
		v, ok := tbl.Get(AssetsTotal, Current)
		assert.True(t, ok)
		assert.Equal(t, 10.0, v)
		assert.True(t, tbl.Has(AssetsTotal))
		assert.False(t, tbl.Has(Inventory))
	}
}

func TestItemsTable_FirstDuplicateWins(t *testing.T) {
	tbl := NewItemsTable([]models.KeyFigure{
		fig(Equity, 1, 2),
		fig(AssetsTotal, 3, 4),
		fig(Equity, 99, 99),
		{ConceptCode: "", CurrentAmount: 5},
	})

	v, ok := tbl.Get(Equity, Prior)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, []string{Equity, AssetsTotal}, tbl.Concepts())

	_, ok = tbl.Get(Equity, Period("future"))
	assert.False(t, ok)
}

func TestLegacyTable_Concepts(t *testing.T) {
	tbl := NewLegacyTable(map[string]float64{
		"pasivo_total_actual":     1,
		"activo_total_anterior":   2,
		"activo_total_actual":     3,
		"informacion_irrelevante": 4,
	})
	assert.Equal(t, []string{AssetsTotal, LiabilitiesTotal}, tbl.Concepts())

	_, ok := tbl.Get(LiabilitiesTotal, Prior)
	assert.False(t, ok)
}
