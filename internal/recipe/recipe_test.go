package recipe

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/config"
)

// fakePage answers Evaluate calls from canned responses and records the
// interactions the recipes make.
type fakePage struct {
	schemas.Page

	hrefs       []string
	nextEnabled bool
	scrolls     int
	settles     int
	clicks      []string
	clickErr    error
}

func (p *fakePage) ScrollToBottom(context.Context) error {
	p.scrolls++
	return nil
}

func (p *fakePage) Settle(context.Context) error {
	p.settles++
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.clicks = append(p.clicks, selector)
	return p.clickErr
}

func (p *fakePage) Evaluate(_ context.Context, script string, out any) error {
	switch {
	case strings.Contains(script, "querySelectorAll('a[href]')"):
		*(out.(*[]string)) = p.hrefs
	case strings.Contains(script, "disabled"):
		*(out.(*bool)) = p.nextEnabled
	}
	return nil
}

// fakeExtractor serves field values from maps; anything absent reports
// found=false.
type fakeExtractor struct {
	texts    map[string]string
	attrs    map[string]string
	clicks   []string
	clickErr error
}

func (x *fakeExtractor) Text(_ context.Context, loc schemas.Locator, def string) (string, bool) {
	if v, ok := x.texts[loc.Description]; ok {
		return v, true
	}
	return def, false
}

func (x *fakeExtractor) Attribute(_ context.Context, loc schemas.Locator, _, def string) (string, bool) {
	if v, ok := x.attrs[loc.Description]; ok {
		return v, true
	}
	return def, false
}

func (x *fakeExtractor) Click(_ context.Context, loc schemas.Locator) error {
	x.clicks = append(x.clicks, loc.Description)
	return x.clickErr
}

func TestJobDetailsExtract(t *testing.T) {
	t.Run("full posting", func(t *testing.T) {
		page := &fakePage{}
		x := &fakeExtractor{
			texts: map[string]string{
				"job title":        "Staff Engineer",
				"company name":     "Kestrel Moor",
				"job location":     "Remote, EU",
				"posted date":      "2 weeks ago",
				"applicant count":  "42 applicants",
				"job description":  "Build scrapers.",
				"benefits section": "Medical, dental",
			},
			attrs: map[string]string{
				"company name": "https://example.com/company/kestrelmoor/",
			},
		}

		rec, err := NewJobDetails().Extract(context.Background(), page, x)
		require.NoError(t, err)

		assert.Equal(t, RecordKindJob, rec.Kind)
		require.NotNil(t, rec.Fields[FieldJobTitle])
		assert.Equal(t, "Staff Engineer", *rec.Fields[FieldJobTitle])
		require.NotNil(t, rec.Fields[FieldCompanyURL])
		assert.Equal(t, "https://example.com/company/kestrelmoor/", *rec.Fields[FieldCompanyURL])

		assert.Equal(t, 1, page.scrolls, "lazy sections need a scroll before reading")
	})

	t.Run("missing fields stay explicit nulls", func(t *testing.T) {
		page := &fakePage{}
		x := &fakeExtractor{texts: map[string]string{"job title": "Staff Engineer"}}

		rec, err := NewJobDetails().Extract(context.Background(), page, x)
		require.NoError(t, err)

		require.Contains(t, rec.Fields, FieldBenefits)
		assert.Nil(t, rec.Fields[FieldBenefits])
		require.Contains(t, rec.Fields, FieldApplicantCount)
		assert.Nil(t, rec.Fields[FieldApplicantCount])
		assert.NotNil(t, rec.Fields[FieldJobTitle])
		assert.Len(t, rec.Fields, 8, "every known field appears in the record")
	})
}

func newSource(t *testing.T, page schemas.Page, x schemas.Extractor) *SavedJobsSource {
	t.Helper()
	src, err := NewSavedJobsSource(page, x, config.CollectConfig{ItemPattern: "/jobs/view/"}, zap.NewNop())
	require.NoError(t, err)
	return src
}

func TestSavedJobsItems(t *testing.T) {
	page := &fakePage{hrefs: []string{
		"https://example.com/jobs/view/1/?refId=a",
		"https://example.com/jobs/view/2/",
	}}
	src := newSource(t, page, &fakeExtractor{})

	items, err := src.Items(context.Background())
	require.NoError(t, err)

	assert.Len(t, items, 2)
	assert.Equal(t, 1, page.scrolls)
	assert.Equal(t, 1, page.settles)
}

func TestSavedJobsHasNext(t *testing.T) {
	src := newSource(t, &fakePage{nextEnabled: true}, &fakeExtractor{})
	hasNext, err := src.HasNext(context.Background())
	require.NoError(t, err)
	assert.True(t, hasNext)

	src = newSource(t, &fakePage{nextEnabled: false}, &fakeExtractor{})
	hasNext, err = src.HasNext(context.Background())
	require.NoError(t, err)
	assert.False(t, hasNext)
}

func TestSavedJobsAdvance(t *testing.T) {
	page := &fakePage{}
	x := &fakeExtractor{}
	src := newSource(t, page, x)

	require.NoError(t, src.Advance(context.Background()))

	assert.Equal(t, []string{"next page button"}, x.clicks, "pagination goes through the retrying extractor")
	assert.Equal(t, 1, page.settles, "the new page gets a settle")
}

func TestSavedJobsAdvanceSurfacesClickFailure(t *testing.T) {
	x := &fakeExtractor{clickErr: &schemas.InteractionError{Locator: "next page button", Attempts: 3}}
	src := newSource(t, &fakePage{}, x)

	err := src.Advance(context.Background())
	var interaction *schemas.InteractionError
	require.ErrorAs(t, err, &interaction)
}

func TestDismissOverlaysIsBestEffort(t *testing.T) {
	page := &fakePage{clickErr: schemas.ErrElementNotFound}
	src := newSource(t, page, &fakeExtractor{})

	// Must not panic or error; a missing modal is the common case.
	src.DismissOverlays(context.Background())
	assert.Len(t, page.clicks, 1)
}
