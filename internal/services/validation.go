package services

import (
	"context"
	"time"

	"github.com/Lllllllleong/financialstatementflow/internal/finance"
	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// validate checks the stored key figures against the accounting identities.
func (g *Graph) validate(ctx context.Context, st State) State {
	started := time.Now()
	logCtx := stageLogger(st, models.StageValidation)
	r := g.reporter(st, logCtx)

	if st.Stop {
		result := finance.NoData()
		st = st.WithTiming(models.StageValidation, time.Since(started).Seconds()).WithProgress(100)
		if err := r.updateStatus(ctx, models.StatusAnalyzed, percent(100),
			models.Patch{"validation": result, "processing_time": st.Timing},
			models.StatusEvent{Validation: &result, ProcessingTime: st.Timing},
		); err != nil {
			return st.WithErr(externalError(models.StageValidation, "no se pudo guardar la validación", err))
		}
		logCtx.Info("No statements to validate.", "status", result.Status)
		return st
	}

	if err := r.updateStatus(ctx, models.StatusValidating, percent(0), nil, models.StatusEvent{}); err != nil {
		return st.WithErr(externalError(models.StageValidation, "no se pudo actualizar el estado", err))
	}

	doc, err := g.deps.Store.Get(ctx, st.DocumentID)
	if err != nil {
		return st.WithErr(externalError(models.StageValidation, "no se pudo leer el documento", err))
	}
	profile, err := g.deps.Tenants.Profile(ctx, st.TenantID)
	if err != nil {
		return st.WithErr(externalError(models.StageValidation, "no se pudo leer el perfil del cliente", err))
	}

	result := finance.Validate(
		finance.NewTable(doc.BalanceData),
		finance.NewTable(doc.IncomeData),
		finance.Options{InventoryDeclared: profile.DeclaresBalance(finance.Inventory)},
	)

	st = st.WithTiming(models.StageValidation, time.Since(started).Seconds()).WithProgress(100)
	if err := r.updateStatus(ctx, models.StatusAnalyzed, percent(100),
		models.Patch{"validation": result, "processing_time": st.Timing},
		models.StatusEvent{Validation: &result, ProcessingTime: st.Timing},
	); err != nil {
		return st.WithErr(externalError(models.StageValidation, "no se pudo guardar la validación", err))
	}
	logCtx.Info("Validation complete.", "status", result.Status, "messages", len(result.Messages))
	return st
}
