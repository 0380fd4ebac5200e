package services

import (
	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// Requester identifies who asked for a run and receives its status events.
type Requester struct {
	ID    string
	Email string
}

// State is the value threaded through the graph. It is never mutated in
// place: every With method returns a modified copy, and page slices are
// cloned before a copy takes them.
type State struct {
	DocumentID string
	Requester  Requester
	Operation  string
	Filename   string
	RawBytes   []byte
	TenantID   string

	Pages      []models.Page
	TotalPages int
	// Stop short-circuits extraction and validation to the NoData outcome.
	Stop bool

	Balance     *models.StatementData
	Income      *models.StatementData
	CompanyInfo *models.CompanyInfo
	Timing      *models.ProcessingTime

	Progress float64
	Err      error
}

// NewState builds the initial state of a task.
func NewState(t Task) State {
	return State{
		DocumentID: t.DocumentID,
		Requester:  t.Requester,
		Operation:  t.Operation,
		Filename:   t.Filename,
		RawBytes:   t.RawBytes,
	}
}

func (s State) WithDocumentID(id string) State {
	s.DocumentID = id
	return s
}

func (s State) WithTenant(id string) State {
	s.TenantID = id
	return s
}

// WithPages stores a copy of pages.
func (s State) WithPages(pages []models.Page, total int) State {
	s.Pages = models.ClonePages(pages)
	s.TotalPages = total
	return s
}

// WithoutRawBytes drops the uploaded file once it has been written out.
func (s State) WithoutRawBytes() State {
	s.RawBytes = nil
	return s
}

func (s State) WithStop() State {
	s.Stop = true
	return s
}

func (s State) WithExtraction(balance, income *models.StatementData, company *models.CompanyInfo) State {
	s.Balance = balance
	s.Income = income
	s.CompanyInfo = company
	return s
}

func (s State) WithProgress(p float64) State {
	s.Progress = p
	return s
}

// WithTiming records the duration of a stage in seconds and refreshes the total.
func (s State) WithTiming(stage string, seconds float64) State {
	t := models.ProcessingTime{}
	if s.Timing != nil {
		t = *s.Timing
	}
	v := seconds
	switch stage {
	case models.StageUploadConvert:
		t.UploadConvert = &v
	case models.StageRecognize:
		t.Recognize = &v
	case models.StageExtract:
		t.Extract = &v
	case models.StageValidation:
		t.Validation = &v
	}
	t.UpdateTotal()
	s.Timing = &t
	return s
}

// WithErr records a failure. The first error wins.
func (s State) WithErr(err error) State {
	if s.Err == nil {
		s.Err = err
	}
	return s
}

// hydrate fills the state from a stored document.
func (s State) hydrate(doc *models.Document) State {
	if doc == nil {
		return s
	}
	if doc.TenantID != "" {
		s.TenantID = doc.TenantID
	}
	if s.Filename == "" {
		s.Filename = doc.Name
	}
	if len(s.RawBytes) == 0 {
		s.Pages = models.ClonePages(doc.Pages)
		s.TotalPages = doc.PageCount
	}
	s.Balance = doc.BalanceData
	s.Income = doc.IncomeData
	s.CompanyInfo = doc.CompanyInfo
	if doc.ProcessingTime != nil {
		t := *doc.ProcessingTime
		s.Timing = &t
	}
	return s
}
