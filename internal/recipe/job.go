// Package recipe holds the site-specific extraction logic: which selectors
// make up a job posting and how the saved-jobs listing paginates. Everything
// else in the core is site-agnostic.
package recipe

import (
	"context"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
)

// RecordKindJob tags records produced by the job details recipe.
const RecordKindJob = "job"

// Field names of a job record. Consumers key on these.
const (
	FieldJobTitle       = "job_title"
	FieldCompany        = "company"
	FieldCompanyURL     = "company_url"
	FieldLocation       = "location"
	FieldPostedDate     = "posted_date"
	FieldApplicantCount = "applicant_count"
	FieldDescription    = "job_description"
	FieldBenefits       = "benefits"
)

// Job posting locators. The descriptions feed warning events, so keep them
// operator-readable.
var (
	locJobTitle = schemas.Locator{
		Selector:    ".job-details-jobs-unified-top-card__job-title h1, h1.top-card-layout__title",
		Description: "job title",
	}
	locCompany = schemas.Locator{
		Selector:    ".job-details-jobs-unified-top-card__company-name a, a.topcard__org-name-link",
		Description: "company name",
	}
	locLocation = schemas.Locator{
		Selector:    ".job-details-jobs-unified-top-card__primary-description-container .tvm__text:first-child, span.topcard__flavor--bullet",
		Description: "job location",
	}
	locPostedDate = schemas.Locator{
		Selector:    ".job-details-jobs-unified-top-card__primary-description-container .tvm__text--positive, span.posted-time-ago__text",
		Description: "posted date",
	}
	locApplicantCount = schemas.Locator{
		Selector:    ".jobs-unified-top-card__applicant-count, span.num-applicants__caption",
		Description: "applicant count",
	}
	locDescription = schemas.Locator{
		Selector:    "#job-details, .jobs-description__content",
		Description: "job description",
	}
	locBenefits = schemas.Locator{
		Selector:    ".jobs-unified-description__salary-main-rail-card, #SALARY",
		Description: "benefits section",
	}
)

// JobDetails extracts a single job posting. Every field is optional: a
// field the page does not render stays an explicit null in the record.
type JobDetails struct{}

var _ schemas.Recipe = (*JobDetails)(nil)

// NewJobDetails returns the job posting recipe.
func NewJobDetails() *JobDetails { return &JobDetails{} }

func (*JobDetails) Name() string { return "job_details" }

// Extract reads the posting's fields. The page is scrolled first so lazily
// rendered sections (description, benefits) exist before they are read.
func (*JobDetails) Extract(ctx context.Context, page schemas.Page, x schemas.Extractor) (*schemas.Record, error) {
	if err := page.ScrollToBottom(ctx); err != nil {
		return nil, err
	}
	if err := page.Settle(ctx); err != nil {
		return nil, err
	}

	rec := schemas.NewRecord(RecordKindJob,
		FieldJobTitle,
		FieldCompany,
		FieldCompanyURL,
		FieldLocation,
		FieldPostedDate,
		FieldApplicantCount,
		FieldDescription,
		FieldBenefits,
	)

	value, ok := x.Text(ctx, locJobTitle, "")
	rec.SetOptional(FieldJobTitle, value, ok)

	value, ok = x.Text(ctx, locCompany, "")
	rec.SetOptional(FieldCompany, value, ok)

	value, ok = x.Attribute(ctx, locCompany, "href", "")
	rec.SetOptional(FieldCompanyURL, value, ok)

	value, ok = x.Text(ctx, locLocation, "")
	rec.SetOptional(FieldLocation, value, ok)

	value, ok = x.Text(ctx, locPostedDate, "")
	rec.SetOptional(FieldPostedDate, value, ok)

	value, ok = x.Text(ctx, locApplicantCount, "")
	rec.SetOptional(FieldApplicantCount, value, ok)

	value, ok = x.Text(ctx, locDescription, "")
	rec.SetOptional(FieldDescription, value, ok)

	value, ok = x.Text(ctx, locBenefits, "")
	rec.SetOptional(FieldBenefits, value, ok)

	return rec, nil
}
