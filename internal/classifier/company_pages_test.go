package classifier

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// traits builds RecognizedInfo from a compact code: c=CUIT n=name a=activity u=audit d=address r=rotated.
func traits(code string) *models.RecognizedInfo {
	ri := &models.RecognizedInfo{}
	for _, ch := range code {
		switch ch {
		case 'c':
			ri.HasCompanyCUIT = true
		case 'n':
			ri.HasCompanyName = true
		case 'a':
			ri.HasCompanyActivity = true
		case 'u':
			ri.HasAuditReport = true
		case 'd':
			ri.HasCompanyAddress = true
		case 'r':
			ri.OrientationDegrees = 90
		}
	}
	return ri
}

func doc(codes ...string) []models.Page {
	pages := make([]models.Page, len(codes))
	for i, code := range codes {
		pages[i] = models.Page{ID: "page-" + string(rune('a'+i)), Number: i + 1, Recognized: traits(code)}
	}
	return pages
}

func numbers(pages []models.Page) []int {
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Number)
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"cnaud", "TOP1A"},
		{"cnaudr", "TOP1B"},
		{"cnau", "TOP2A"},
		{"cna", "TOP3A"},
		{"cnad", "TOP3A"},
		{"cnu", "TOP4A"},
		{"cn", "TOP5A"},
		{"cnd", "TOP5A"},
		{"naud", "TOP6A"},
		{"nau", "TOP7A"},
		{"na", "TOP8A"},
		{"nu", "TOP9A"},
		{"nr", "TOP10B"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			b, ok := Classify(traits(tt.code))
			require.True(t, ok)
			assert.Equal(t, tt.want, b.String())
		})
	}

	for _, code := range []string{"", "c", "cud", "a", "r"} {
		_, ok := Classify(traits(code))
		assert.False(t, ok, "code %q should be unclassified", code)
	}
	_, ok := Classify(nil)
	assert.False(t, ok)
}

func TestSelect_TopOneWinsRegardlessOfOrder(t *testing.T) {
	pages := doc("cnau", "cn", "cnaudr", "na", "cnaud")

	want := SelectCompanyPages(pages)
	require.Equal(t, 1, want.Rule)
	// Upright TOP1 beats the rotated one; the secondary comes from TOP3..TOP10.
	assert.Equal(t, []int{5, 2}, numbers(want.Pages))

	permutations := [][]int{{4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}, {1, 4, 0, 3, 2}}
	for _, perm := range permutations {
		shuffled := make([]models.Page, len(pages))
		for i, j := range perm {
			shuffled[i] = pages[j]
		}
		got := SelectCompanyPages(shuffled)
		if diff := cmp.Diff(want.Pages, got.Pages); diff != "" {
			t.Errorf("selection depends on input order (-want +got):\n%s", diff)
		}
	}
}

func TestSelect_IsIdempotent(t *testing.T) {
	pages := doc("cna", "nu", "cnr", "cnu", "cn")

	first := SelectCompanyPages(pages)
	second := SelectCompanyPages(first.Flagged)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestSelect_FlagsAreRecomputed(t *testing.T) {
	pages := doc("", "cnau", "d")
	pages[0].CompanyInfo = true

	got := SelectCompanyPages(pages)
	require.Equal(t, 2, got.Rule)
	assert.Equal(t, []int{2, 3}, numbers(got.Pages))
	assert.Equal(t, []bool{false, true, true}, []bool{got.Flagged[0].CompanyInfo, got.Flagged[1].CompanyInfo, got.Flagged[2].CompanyInfo})
	// The input is left untouched.
	assert.True(t, pages[0].CompanyInfo)
	assert.False(t, pages[1].CompanyInfo)
}

func TestSelect_Rules(t *testing.T) {
	tests := []struct {
		name  string
		pages []models.Page
		rule  int
		want  []int
	}{
		{"rule 1 without secondary", doc("cnaud", "cnau"), 1, []int{1}},
		{"rule 2 prefers upright address page", doc("dr", "cnau", "d"), 2, []int{2, 3}},
		{"rule 2 falls back to bucket scan", doc("nu", "cnau", "na"), 2, []int{2, 3}},
		{"rule 3 prefers audit page", doc("cna", "cn", "ur"), 3, []int{1, 3}},
		{"rule 3 then another TOP3", doc("cnar", "cna", "cn"), 3, []int{2, 1}},
		{"rule 3 then TOP5", doc("cna", "cnr", "cn"), 3, []int{1, 3}},
		{"rule 3 then any CUIT page", doc("c", "cna", "n"), 3, []int{2, 1}},
		{"rule 3 then no CUIT buckets", doc("n", "cna", "na"), 3, []int{2, 3}},
		{"rule 4 then TOP5", doc("cnu", "cnr"), 4, []int{1, 2}},
		{"rule 4 then CUIT page", doc("cr", "cnu", "c"), 4, []int{2, 3}},
		{"rule 5 prefers last upright TOP5", doc("cn", "cn", "cn", "cnr"), 5, []int{1, 3}},
		{"rule 5 then CUIT page", doc("cn", "cr"), 5, []int{1, 2}},
		{"rule 6 scans lower buckets", doc("n", "naud", "na"), 6, []int{2, 3}},
		{"rule 7 scans lower buckets", doc("nau", "nu"), 7, []int{1, 2}},
		{"rule 8 alone", doc("na", "c"), 8, []int{1}},
		{"rule 9 prefers upright TOP10", doc("nr", "nu", "n"), 9, []int{2, 3}},
		{"rule 10 prefers last upright", doc("n", "n", "nr", "n", "nr"), 10, []int{1, 4}},
		{"rule 11 two upright CUIT pages", doc("c", "cr", "c", "c"), 11, []int{1, 4}},
		{"rule 11 one upright CUIT page", doc("cr", "c", "cr"), 11, []int{2, 3}},
		{"rule 11 only rotated", doc("cr", "", "cr", "cr"), 11, []int{1, 4}},
		{"rule 11 single page", doc("", "cd"), 11, []int{2}},
		{"rule 12 nothing relevant", doc("", "ud", "a"), 12, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectCompanyPages(tt.pages)
			assert.Equal(t, tt.rule, got.Rule)
			assert.Equal(t, tt.want, numbers(got.Pages))
			for _, p := range got.Pages {
				assert.True(t, p.CompanyInfo)
			}
		})
	}
}

func TestSelect_UnrecognizedPagesAreIgnored(t *testing.T) {
	pages := doc("cn", "c")
	pages[1].Recognized = nil

	got := SelectCompanyPages(pages)
	assert.Equal(t, []int{1}, numbers(got.Pages))
	assert.Len(t, got.Flagged, 2)
}
