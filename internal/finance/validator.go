package finance

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// Tolerance is the maximum relative error accepted by identity checks (0.05%).
const Tolerance = 0.0005

// Concept codes the checks rely on.
const (
	AssetsTotal           = "activo_total"
	CurrentAssets         = "activo_corriente"
	NonCurrentAssets      = "activo_no_corriente"
	LiabilitiesTotal      = "pasivo_total"
	CurrentLiabilities    = "pasivo_corriente"
	NonCurrentLiabilities = "pasivo_no_corriente"
	Equity                = "patrimonio_neto"
	CashEquivalents       = "disponibilidades"
	Inventory             = "bienes_de_cambio"
	SalesRevenue          = "ingresos_por_venta"
	PretaxIncome          = "resultados_antes_de_impuestos"
	NetIncome             = "resultados_del_ejercicio"
)

const (
	// NoDataMessage explains a NoData outcome to the user.
	NoDataMessage = "No se han detectado en el documento las páginas de Estado de Resultados y/o Estado de Situación Patrimonial.\nPor favor, revisar el documento de balance."
	// SuccessMessage is the single message of a Validated outcome.
	SuccessMessage = "Validación completada con éxito. No se han detectado inconsistencias en las cuentas elementales."
)

// Options tunes which optional checks apply.
type Options struct {
	// InventoryDeclared enables the inventory checks when the tenant reports inventory.
	InventoryDeclared bool
}

// NoData is the outcome when a statement is missing or extraction stopped early.
func NoData() models.Validation {
	return models.Validation{Status: models.ValidationNoData, Messages: []string{NoDataMessage}}
}

// WithinTolerance reports whether actual matches expected within Tolerance.
// An expected value of zero only accepts an actual value within Tolerance of zero.
func WithinTolerance(expected, actual float64) bool {
	if expected == 0 {
		return math.Abs(actual) <= Tolerance
	}
	return math.Abs(actual-expected)/math.Abs(expected) <= Tolerance
}

// Validate runs the accounting checks on the balance and income key figures.
// A nil table yields NoData.
func Validate(balance, income Table, opts Options) models.Validation {
	if balance == nil || income == nil {
		return NoData()
	}

	c := &checker{p: message.NewPrinter(language.English)}
	periods := []struct {
		period Period
		label  string
	}{{Current, "actual"}, {Prior, "anterior"}}

	// 1. A = P + PN
	for _, pr := range periods {
		a, okA := figure(balance, AssetsTotal, pr.period)
		p, okP := figure(balance, LiabilitiesTotal, pr.period)
		pn, okPN := figure(balance, Equity, pr.period)
		if okA && okP && okPN && !WithinTolerance(a, p+pn) {
			c.addf("A = P + PN (Período %s):\n$%.2f ≠ $%.2f + $%.2f", pr.label, a, p, pn)
		}
	}

	// 2. A = A corriente + A no corriente
	for _, pr := range periods {
		a, okA := figure(balance, AssetsTotal, pr.period)
		ac, okAC := figure(balance, CurrentAssets, pr.period)
		anc, okANC := figure(balance, NonCurrentAssets, pr.period)
		if okA && okAC && okANC && !WithinTolerance(a, ac+anc) {
			c.addf("A = A CORRIENTE + A NO CORRIENTE (Período %s):\n$%.2f ≠ $%.2f + $%.2f", pr.label, a, ac, anc)
		}
	}

	// 3. P = P corriente + P no corriente
	for _, pr := range periods {
		p, okP := figure(balance, LiabilitiesTotal, pr.period)
		pc, okPC := figure(balance, CurrentLiabilities, pr.period)
		pnc, okPNC := figure(balance, NonCurrentLiabilities, pr.period)
		if okP && okPC && okPNC && !WithinTolerance(p, pc+pnc) {
			c.addf("P = P CORRIENTE + P NO CORRIENTE (Período %s):\n$%.2f ≠ $%.2f + $%.2f", pr.label, p, pc, pnc)
		}
	}

	// 5. Disponibilidades <= Activo corriente
	for _, pr := range periods {
		cash, okCash := figure(balance, CashEquivalents, pr.period)
		ac, okAC := figure(balance, CurrentAssets, pr.period)
		if okCash && okAC && cash > ac+Tolerance {
			c.addf("Disponibilidades (%s) > Activo corriente (%s):\n$%.2f > $%.2f", pr.label, pr.label, cash, ac)
		}
	}

	if opts.InventoryDeclared {
		// 6. Bienes de cambio <= Activo corriente
		for _, pr := range periods {
			inv, okInv := figure(balance, Inventory, pr.period)
			ac, okAC := figure(balance, CurrentAssets, pr.period)
			if okInv && okAC && inv > ac+Tolerance {
				c.addf("Bienes de cambio (%s) > Activo corriente (%s):\n$%.2f > $%.2f", pr.label, pr.label, inv, ac)
			}
		}
		// 7. Disponibilidades + Bienes de cambio <= Activo corriente
		for _, pr := range periods {
			cash, okCash := figure(balance, CashEquivalents, pr.period)
			inv, okInv := figure(balance, Inventory, pr.period)
			ac, okAC := figure(balance, CurrentAssets, pr.period)
			if okCash && okInv && okAC && cash+inv > ac+Tolerance {
				c.addf("Disponibilidades + Bienes de cambio (%s) > Activo corriente (%s):\n$%.2f > $%.2f", pr.label, pr.label, cash+inv, ac)
			}
		}
	}

	// 9. Ingresos por venta >= Resultado antes de impuestos
	for _, pr := range periods {
		sales, okSales := figure(income, SalesRevenue, pr.period)
		pretax, okPretax := figure(income, PretaxIncome, pr.period)
		if okSales && okPretax && sales+Tolerance < pretax {
			c.addf("Ingresos por venta (%s) < Resultado antes de impuestos (%s):\n$%.2f < $%.2f", pr.label, pr.label, sales, pretax)
		}
	}

	// 10. ΔA = ΔP + ΔPN
	aCur, ok1 := figure(balance, AssetsTotal, Current)
	aPrior, ok2 := figure(balance, AssetsTotal, Prior)
	pCur, ok3 := figure(balance, LiabilitiesTotal, Current)
	pPrior, ok4 := figure(balance, LiabilitiesTotal, Prior)
	pnCur, ok5 := figure(balance, Equity, Current)
	pnPrior, ok6 := figure(balance, Equity, Prior)
	if ok1 && ok2 && ok3 && ok4 && ok5 && ok6 {
		dA := aCur - aPrior
		dPPN := (pCur - pPrior) + (pnCur - pnPrior)
		if !WithinTolerance(dA, dPPN) {
			c.addf("ΔA = ΔP + ΔPN:\nΔA = $%.2f  ↔  ΔP + ΔPN = $%.2f", dA, dPPN)
		}
	}

	if len(c.messages) == 0 {
		return models.Validation{Status: models.ValidationValidated, Messages: []string{SuccessMessage}}
	}
	return models.Validation{Status: models.ValidationWarning, Messages: c.messages}
}

// figure reports a zero amount as missing.
func figure(t Table, concept string, period Period) (float64, bool) {
	v, ok := t.Get(concept, period)
	return v, ok && v != 0
}

type checker struct {
	p        *message.Printer
	messages []string
}

func (c *checker) addf(format string, args ...any) {
	c.messages = append(c.messages, c.p.Sprintf(format, args...))
}
