package models

import (
	"errors"
	"regexp"
	"time"
)

// ErrDocumentNotFound is returned by document stores when a record does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// Document represents the statement record the pipeline reads and patches.
// Field names match the stored record and the status event payload.
type Document struct {
	ID                  string          `json:"-"`
	Name                string          `json:"name,omitempty"`
	Status              string          `json:"status,omitempty"`
	UploadPath          string          `json:"upload_path,omitempty"`
	Progress            float64         `json:"progress"`
	Pages               []Page          `json:"pages,omitempty"`
	PageCount           int             `json:"page_count"`
	UploadDate          time.Time       `json:"upload_date"`
	UploadedBy          string          `json:"uploaded_by,omitempty"`
	FileHash            string          `json:"file_hash,omitempty"`
	BalanceDate         string          `json:"balance_date,omitempty"`
	BalanceDatePrevious string          `json:"balance_date_previous,omitempty"`
	BalanceData         *StatementData  `json:"balance_data,omitempty"`
	IncomeData          *StatementData  `json:"income_statement_data,omitempty"`
	Validation          *Validation     `json:"validation,omitempty"`
	CompanyInfo         *CompanyInfo    `json:"company_info,omitempty"`
	ProcessingTime      *ProcessingTime `json:"processing_time,omitempty"`
	TenantID            string          `json:"tenant_id,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`
}

// Page is one rasterized page of a statement.
type Page struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Number          int             `json:"number"`
	ImagePath       string          `json:"image_path"`
	Recognized      *RecognizedInfo `json:"recognized_info,omitempty"`
	RotationDegrees int             `json:"rotation_degrees"`
	CompanyInfo     bool            `json:"company_info"`
}

// RecognizedInfo is the classifier verdict for a single page.
type RecognizedInfo struct {
	IsBalanceSheet     bool `json:"is_balance_sheet"`
	IsIncomeStatement  bool `json:"is_income_statement_sheet"`
	IsAppendix         bool `json:"is_appendix"`
	OrientationDegrees int  `json:"original_orientation_degrees"`
	HasCompanyCUIT     bool `json:"has_company_cuit"`
	HasCompanyName     bool `json:"has_company_name"`
	HasCompanyAddress  bool `json:"has_company_address"`
	HasCompanyActivity bool `json:"has_company_activity"`
	HasAuditReport     bool `json:"audit_report"`
}

// Upright reports whether the page was scanned without rotation.
func (r *RecognizedInfo) Upright() bool {
	return r.OrientationDegrees == 0
}

// NormalizeOrientation snaps an arbitrary angle to the nearest quarter turn in [0, 360).
func NormalizeOrientation(degrees int) int {
	d := ((degrees % 360) + 360) % 360
	q := ((d + 45) / 90) % 4
	return q * 90
}

// CompanyInfo identifies the company that owns the statement.
type CompanyInfo struct {
	CUIT     string `json:"company_cuit,omitempty"`
	Name     string `json:"company_name"`
	Activity string `json:"company_activity,omitempty"`
	Address  string `json:"company_address,omitempty"`
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizeCUIT strips separators from a tax id and returns it only when
// exactly 11 digits remain.
func NormalizeCUIT(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) != 11 {
		return ""
	}
	return digits
}

// Patch lists the document fields to overwrite, keyed by stored field name.
type Patch map[string]any

// ImagePart is one labelled page image handed to the vision model.
type ImagePart struct {
	Label    string
	MIMEType string
	Data     []byte
}

// ClonePages returns a deep copy of pages so callers can change flags without
// touching the original slice.
func ClonePages(pages []Page) []Page {
	if pages == nil {
		return nil
	}
	out := make([]Page, len(pages))
	for i, p := range pages {
		out[i] = p
		if p.Recognized != nil {
			ri := *p.Recognized
			out[i].Recognized = &ri
		}
	}
	return out
}
