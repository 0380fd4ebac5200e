package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/financialstatementflow/internal/classifier"
	"github.com/Lllllllleong/financialstatementflow/internal/finance"
	"github.com/Lllllllleong/financialstatementflow/internal/models"
	"github.com/Lllllllleong/financialstatementflow/internal/tenant"
)

// extractionResult collects the outputs of the three extractors.
type extractionResult struct {
	balance    *models.StatementData
	income     *models.StatementData
	company    *models.CompanyInfo
	balanceErr error
	incomeErr  error
	companyErr error
}

func (r *extractionResult) err() error {
	var failed []string
	if r.balanceErr != nil {
		failed = append(failed, "Balance: "+r.balanceErr.Error())
	}
	if r.incomeErr != nil {
		failed = append(failed, "Income: "+r.incomeErr.Error())
	}
	if r.companyErr != nil {
		failed = append(failed, "Company Info: "+r.companyErr.Error())
	}
	if len(failed) == 0 {
		return nil
	}
	return externalError(models.StageExtract, strings.Join(failed, "; "), nil)
}

// extract reads the balance, the income statement and the company identity
// from the recognized pages.
func (g *Graph) extract(ctx context.Context, st State) State {
	started := time.Now()
	logCtx := stageLogger(st, models.StageExtract)
	if st.Stop {
		return st
	}

	balancePages, incomePages := statementPages(st.Pages)
	if len(balancePages) == 0 && len(incomePages) == 0 {
		logCtx.Warn("No balance or income pages recognized, skipping extraction.")
		return st.WithStop()
	}

	profile, err := g.deps.Tenants.Profile(ctx, st.TenantID)
	if err != nil {
		return st.WithErr(externalError(models.StageExtract, "no se pudo leer el perfil del cliente", err))
	}

	r := g.reporter(st, logCtx)
	if err := r.updateStatus(ctx, models.StatusAnalyzing, percent(0), nil, models.StatusEvent{}); err != nil {
		return st.WithErr(externalError(models.StageExtract, "no se pudo actualizar el estado", err))
	}

	selection := classifier.SelectCompanyPages(st.Pages)
	logCtx.Info("Selected company info pages.", "rule", selection.Rule, "pages", pageNumbers(selection.Pages),
		"balancePages", pageNumbers(balancePages), "incomePages", pageNumbers(incomePages))

	var (
		mu       sync.Mutex
		finished int
		res      extractionResult
	)
	// finish records one extractor outcome; the first two move progress to 33 and 66.
	finish := func(assign func()) {
		mu.Lock()
		defer mu.Unlock()
		assign()
		finished++
		if finished < 3 {
			r.progress(ctx, models.StatusAnalyzing, float64(finished*33))
		}
	}

	var eg errgroup.Group
	eg.Go(func() error {
		data, err := g.extractStatement(ctx, balancePages, profile.Prompts.Balance, profile.BalanceConcepts(), profile.BalanceLabel, g.deps.Vision.ExtractBalance)
		finish(func() { res.balance, res.balanceErr = data, err })
		return nil
	})
	eg.Go(func() error {
		data, err := g.extractStatement(ctx, incomePages, profile.Prompts.Income, profile.IncomeConcepts(), profile.IncomeLabel, g.deps.Vision.ExtractIncome)
		finish(func() { res.income, res.incomeErr = data, err })
		return nil
	})
	eg.Go(func() error {
		info, err := g.extractCompany(ctx, selection.Pages, profile)
		finish(func() { res.company, res.companyErr = info, err })
		return nil
	})
	_ = eg.Wait()

	if err := res.err(); err != nil {
		return st.WithErr(err)
	}

	st = st.WithPages(selection.Flagged, st.TotalPages).
		WithExtraction(res.balance, res.income, res.company).
		WithTiming(models.StageExtract, time.Since(started).Seconds()).
		WithProgress(100)

	balanceDate, priorDate := periods(res.balance)
	if err := r.updateStatus(ctx, models.StatusAnalyzed, percent(100),
		models.Patch{
			"pages":                 st.Pages,
			"balance_data":          res.balance,
			"balance_date":          balanceDate,
			"balance_date_previous": priorDate,
			"income_statement_data": res.income,
			"company_info":          res.company,
			"processing_time":       st.Timing,
		},
		models.StatusEvent{BalanceDate: balanceDate, CompanyInfo: res.company, ProcessingTime: st.Timing},
	); err != nil {
		return st.WithErr(externalError(models.StageExtract, "no se pudo guardar la extracción", err))
	}
	logCtx.Info("Extraction complete.", "balance", res.balance != nil, "income", res.income != nil, "company", res.company.Name)
	return st
}

type statementExtractor func(ctx context.Context, instructions string, concepts []string, images []models.ImagePart) (*models.StatementData, error)

// extractStatement sends the pages of one statement to the model and labels
// the key figures it returns. No pages means no data and no call.
func (g *Graph) extractStatement(ctx context.Context, pages []models.Page, instructions string, concepts []string, labelOf func(string) string, call statementExtractor) (*models.StatementData, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	images, err := g.loadImages(ctx, pages)
	if err != nil {
		return nil, err
	}
	data, err := call(ctx, instructions, concepts, images)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("empty model response")
	}
	data.KeyFigures = labelFigures(data.KeyFigures, labelOf)
	return data, nil
}

// extractCompany reads the company identity from the selected pages. An empty
// selection yields an empty CompanyInfo without calling the model.
func (g *Graph) extractCompany(ctx context.Context, pages []models.Page, profile *tenant.Profile) (*models.CompanyInfo, error) {
	if len(pages) == 0 {
		return &models.CompanyInfo{}, nil
	}
	images, err := g.loadImages(ctx, pages)
	if err != nil {
		return nil, err
	}
	info, err := g.deps.Vision.ExtractCompanyInfo(ctx, profile.Prompts.CompanyInfo, images)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return &models.CompanyInfo{}, nil
	}
	out := *info
	out.CUIT = models.NormalizeCUIT(out.CUIT)
	return &out, nil
}

// loadImages fetches page images labelled "IMAGEN n:" in the given order.
func (g *Graph) loadImages(ctx context.Context, pages []models.Page) ([]models.ImagePart, error) {
	images := make([]models.ImagePart, 0, len(pages))
	for i, p := range pages {
		data, err := g.deps.Blobs.Get(ctx, p.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", p.Number, err)
		}
		images = append(images, models.ImagePart{
			Label:    fmt.Sprintf("IMAGEN %d:", i+1),
			MIMEType: "image/png",
			Data:     data,
		})
	}
	return images, nil
}

// labelFigures turns the model's figures into labelled items. Legacy shaped
// answers are converted, and the first occurrence of a concept wins.
func labelFigures(figures models.KeyFigures, labelOf func(string) string) models.KeyFigures {
	items := figures.Items
	if figures.IsLegacy() {
		t := finance.NewLegacyTable(figures.Legacy)
		for _, code := range t.Concepts() {
			cur, _ := t.Get(code, finance.Current)
			prior, _ := t.Get(code, finance.Prior)
			items = append(items, models.KeyFigure{ConceptCode: code, CurrentAmount: cur, PriorAmount: prior})
		}
	}

	seen := make(map[string]bool, len(items))
	out := make([]models.KeyFigure, 0, len(items))
	for _, it := range items {
		if it.ConceptCode == "" || seen[it.ConceptCode] {
			continue
		}
		seen[it.ConceptCode] = true
		it.Label = labelOf(it.ConceptCode)
		out = append(out, it)
	}
	return models.KeyFigures{Items: out}
}

// statementPages splits the recognized pages by statement, in sequence order.
func statementPages(pages []models.Page) (balance, income []models.Page) {
	for _, p := range sortedPages(pages) {
		if p.Recognized == nil {
			continue
		}
		if p.Recognized.IsBalanceSheet {
			balance = append(balance, p)
		}
		if p.Recognized.IsIncomeStatement {
			income = append(income, p)
		}
	}
	return balance, income
}

func sortedPages(pages []models.Page) []models.Page {
	out := models.ClonePages(pages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func periods(balance *models.StatementData) (current, prior string) {
	if balance == nil {
		return "", ""
	}
	return balance.GeneralInfo.CurrentPeriod, balance.GeneralInfo.PriorPeriod
}

func pageNumbers(pages []models.Page) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = p.Number
	}
	return out
}
