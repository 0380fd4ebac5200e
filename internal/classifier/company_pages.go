// Package classifier decides which recognized pages describe the company
// that owns a financial statement.
package classifier

import (
	"fmt"
	"sort"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// Bucket ranks a page by the company identity fields it carries.
// Lower Rank is better; Upright pages (suffix A) beat rotated ones (suffix B).
type Bucket struct {
	Rank    int
	Upright bool
}

func (b Bucket) String() string {
	suffix := "B"
	if b.Upright {
		suffix = "A"
	}
	return fmt.Sprintf("TOP%d%s", b.Rank, suffix)
}

// Classify returns the bucket of a page and false when it matches none.
// Rules are evaluated in strict priority order and the first match wins.
func Classify(ri *models.RecognizedInfo) (Bucket, bool) {
	if ri == nil {
		return Bucket{}, false
	}
	cuit, name, activity := ri.HasCompanyCUIT, ri.HasCompanyName, ri.HasCompanyActivity
	audit, address := ri.HasAuditReport, ri.HasCompanyAddress

	rank := 0
	switch {
	case cuit && name && activity && audit && address:
		rank = 1
	case cuit && name && activity && audit:
		rank = 2
	case cuit && name && activity:
		rank = 3
	case cuit && name && audit:
		rank = 4
	case cuit && name:
		rank = 5
	case name && activity && audit && address:
		rank = 6
	case name && activity && audit:
		rank = 7
	case name && activity:
		rank = 8
	case name && audit:
		rank = 9
	case name:
		rank = 10
	default:
		return Bucket{}, false
	}
	return Bucket{Rank: rank, Upright: ri.Upright()}, true
}

// Selection is the outcome of SelectCompanyPages.
type Selection struct {
	// Pages holds the selected pages, primary first.
	Pages []models.Page
	// Rule is the number (1-12) of the selection rule that fired.
	Rule int
	// Flagged is a copy of the input pages with CompanyInfo recomputed.
	Flagged []models.Page
}

// index groups candidate pages by bucket, each list in page sequence order.
type index struct {
	pages   []models.Page
	buckets map[Bucket][]models.Page
}

func newIndex(pages []models.Page) *index {
	ordered := models.ClonePages(pages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	idx := &index{pages: ordered, buckets: make(map[Bucket][]models.Page)}
	for _, p := range ordered {
		if b, ok := Classify(p.Recognized); ok {
			idx.buckets[b] = append(idx.buckets[b], p)
		}
	}
	return idx
}

// top returns the first upright page of rank, else the first rotated one.
func (x *index) top(rank int) (models.Page, bool) {
	if l := x.buckets[Bucket{rank, true}]; len(l) > 0 {
		return l[0], true
	}
	if l := x.buckets[Bucket{rank, false}]; len(l) > 0 {
		return l[0], true
	}
	return models.Page{}, false
}

// scan walks buckets rank by rank (A before B) and returns the first page other than primary.
func (x *index) scan(primary models.Page, from, to int) (models.Page, bool) {
	for rank := from; rank <= to; rank++ {
		for _, upright := range []bool{true, false} {
			for _, p := range x.buckets[Bucket{rank, upright}] {
				if p.Number != primary.Number {
					return p, true
				}
			}
		}
	}
	return models.Page{}, false
}

// ranked returns the pages of a rank, upright ones first, excluding primary.
func (x *index) ranked(rank int, primary models.Page) []models.Page {
	var out []models.Page
	for _, upright := range []bool{true, false} {
		for _, p := range x.buckets[Bucket{rank, upright}] {
			if p.Number != primary.Number {
				out = append(out, p)
			}
		}
	}
	return out
}

// where returns all pages (any bucket or none) matching pred, excluding primary.
func (x *index) where(primary models.Page, pred func(*models.RecognizedInfo) bool) []models.Page {
	var out []models.Page
	for _, p := range x.pages {
		if p.Number == primary.Number || p.Recognized == nil {
			continue
		}
		if pred(p.Recognized) {
			out = append(out, p)
		}
	}
	return out
}

// preferUpright returns the first upright page of candidates, else the first one.
func preferUpright(candidates []models.Page) (models.Page, bool) {
	for _, p := range candidates {
		if p.Recognized != nil && p.Recognized.Upright() {
			return p, true
		}
	}
	if len(candidates) > 0 {
		return candidates[0], true
	}
	return models.Page{}, false
}

// preferLastUpright returns the last upright page of candidates, else the last one.
func preferLastUpright(candidates []models.Page) (models.Page, bool) {
	for i := len(candidates) - 1; i >= 0; i-- {
		if r := candidates[i].Recognized; r != nil && r.Upright() {
			return candidates[i], true
		}
	}
	if len(candidates) > 0 {
		return candidates[len(candidates)-1], true
	}
	return models.Page{}, false
}

func hasCUIT(r *models.RecognizedInfo) bool    { return r.HasCompanyCUIT }
func hasAddress(r *models.RecognizedInfo) bool { return r.HasCompanyAddress }
func hasAudit(r *models.RecognizedInfo) bool   { return r.HasAuditReport }

// secondaryFunc yields a candidate secondary page, or false to try the next one.
type secondaryFunc func() (models.Page, bool)

func firstOf(fns ...secondaryFunc) (models.Page, bool) {
	for _, fn := range fns {
		if p, ok := fn(); ok {
			return p, true
		}
	}
	return models.Page{}, false
}

// SelectCompanyPages picks up to two pages carrying company identity data.
// Pages are identified by their sequence number. The result only depends on
// page numbers and recognition output, never on the order of the input slice.
func SelectCompanyPages(pages []models.Page) Selection {
	x := newIndex(pages)

	selected, rule := x.selectPages()

	chosen := make(map[int]bool, len(selected))
	for _, p := range selected {
		chosen[p.Number] = true
	}
	flagged := models.ClonePages(pages)
	for i := range flagged {
		flagged[i].CompanyInfo = chosen[flagged[i].Number]
	}
	for i := range selected {
		selected[i].CompanyInfo = true
	}
	return Selection{Pages: selected, Rule: rule, Flagged: flagged}
}

func (x *index) selectPages() ([]models.Page, int) {
	pair := func(primary models.Page, fns ...secondaryFunc) []models.Page {
		if secondary, ok := firstOf(fns...); ok {
			return []models.Page{primary, secondary}
		}
		return []models.Page{primary}
	}
	cuitPages := func(primary models.Page) secondaryFunc {
		return func() (models.Page, bool) { return preferUpright(x.where(primary, hasCUIT)) }
	}
	noCUITScan := func(primary models.Page) secondaryFunc {
		return func() (models.Page, bool) { return x.scan(primary, 6, 10) }
	}

	// Rule 1
	if primary, ok := x.top(1); ok {
		return pair(primary, func() (models.Page, bool) { return x.scan(primary, 3, 10) }), 1
	}
	// Rule 2
	if primary, ok := x.top(2); ok {
		return pair(primary,
			func() (models.Page, bool) { return preferUpright(x.where(primary, hasAddress)) },
			func() (models.Page, bool) { return x.scan(primary, 3, 10) },
		), 2
	}
	// Rule 3
	if primary, ok := x.top(3); ok {
		return pair(primary,
			func() (models.Page, bool) { return preferUpright(x.where(primary, hasAudit)) },
			func() (models.Page, bool) { return preferUpright(x.ranked(3, primary)) },
			func() (models.Page, bool) { return preferUpright(x.ranked(5, primary)) },
			cuitPages(primary),
			noCUITScan(primary),
		), 3
	}
	// Rule 4
	if primary, ok := x.top(4); ok {
		return pair(primary,
			func() (models.Page, bool) { return preferUpright(x.ranked(5, primary)) },
			cuitPages(primary),
			noCUITScan(primary),
		), 4
	}
	// Rule 5
	if primary, ok := x.top(5); ok {
		return pair(primary,
			func() (models.Page, bool) { return preferLastUpright(x.ranked(5, primary)) },
			cuitPages(primary),
			noCUITScan(primary),
		), 5
	}
	// Rules 6 to 8
	for rank := 6; rank <= 8; rank++ {
		if primary, ok := x.top(rank); ok {
			from := rank + 1
			return pair(primary, func() (models.Page, bool) { return x.scan(primary, from, 10) }), rank
		}
	}
	// Rule 9
	if primary, ok := x.top(9); ok {
		return pair(primary, func() (models.Page, bool) { return preferUpright(x.ranked(10, primary)) }), 9
	}
	// Rule 10
	if primary, ok := x.top(10); ok {
		return pair(primary, func() (models.Page, bool) { return preferLastUpright(x.ranked(10, primary)) }), 10
	}
	// Rule 11
	if cuit := x.where(models.Page{}, hasCUIT); len(cuit) > 0 {
		var upright []models.Page
		for _, p := range cuit {
			if p.Recognized.Upright() {
				upright = append(upright, p)
			}
		}
		switch {
		case len(upright) >= 2:
			return []models.Page{upright[0], upright[len(upright)-1]}, 11
		case len(upright) == 1 && len(cuit) > 1:
			last := cuit[len(cuit)-1]
			if last.Number == upright[0].Number {
				last = cuit[0]
			}
			return []models.Page{upright[0], last}, 11
		case len(cuit) >= 2:
			return []models.Page{cuit[0], cuit[len(cuit)-1]}, 11
		default:
			return []models.Page{cuit[0]}, 11
		}
	}
	// Rule 12
	return nil, 12
}
