// Package student implements validated CRUD over the student records
// table. Every operation takes the authenticated caller identity; mutating
// operations require the admin role. Uniqueness of enrollment number and
// email is arbitrated by the store's constraints, not by pre-checks.
package student

import (
	"context"
	"strings"

	"studentadmin/internal/apperr"
	"studentadmin/internal/auth"
	"studentadmin/internal/store"
)

const (
	defaultPage    = 1
	defaultPerPage = 10
)

// Input carries the fields for a create.
type Input struct {
	Name             string `json:"name"`
	EnrollmentNumber string `json:"enrollment_number"`
	Course           string `json:"course"`
	Email            string `json:"email"`
}

// Fields carries a partial update; nil pointers mean "leave unchanged".
type Fields struct {
	Name             *string `json:"name"`
	EnrollmentNumber *string `json:"enrollment_number"`
	Course           *string `json:"course"`
	Email            *string `json:"email"`
}

// Page is one window of the record listing plus the total count across all
// records.
type Page struct {
	Records []Record
	Total   int64
	Page    int
	PerPage int
}

// Service coordinates validation, authorization and persistence.
type Service struct {
	repo       *Repository
	maxPerPage int
}

// NewService creates a service backed by a repository. A non-positive
// maxPerPage falls back to 100.
func NewService(repo *Repository, maxPerPage int) *Service {
	if maxPerPage <= 0 {
		maxPerPage = 100
	}
	return &Service{repo: repo, maxPerPage: maxPerPage}
}

// List returns one page of records. Non-positive page and perPage fall
// back to 1 and 10; perPage is clamped to the configured maximum.
func (s *Service) List(ctx context.Context, _ auth.Identity, page, perPage int) (Page, error) {
	if page < 1 {
		page = defaultPage
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > s.maxPerPage {
		perPage = s.maxPerPage
	}

	records, err := s.repo.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return Page{}, apperr.Internal("student.list", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return Page{}, apperr.Internal("student.list", err)
	}
	if records == nil {
		records = []Record{}
	}
	return Page{Records: records, Total: total, Page: page, PerPage: perPage}, nil
}

// Create validates, normalizes and stores a new record, returning its id.
// All four fields are required; email is lower-cased before persisting.
func (s *Service) Create(ctx context.Context, id auth.Identity, in Input) (int64, error) {
	if err := auth.Authorize(id.Role, auth.RoleAdmin); err != nil {
		return 0, err
	}

	rec := Record{
		Name:             strings.TrimSpace(in.Name),
		EnrollmentNumber: strings.TrimSpace(in.EnrollmentNumber),
		Course:           strings.TrimSpace(in.Course),
		Email:            strings.ToLower(strings.TrimSpace(in.Email)),
	}
	switch {
	case rec.Name == "":
		return 0, apperr.BadRequest("field 'name' is required")
	case rec.EnrollmentNumber == "":
		return 0, apperr.BadRequest("field 'enrollment_number' is required")
	case rec.Course == "":
		return 0, apperr.BadRequest("field 'course' is required")
	case rec.Email == "":
		return 0, apperr.BadRequest("field 'email' is required")
	}
	if !strings.Contains(rec.Email, "@") {
		return 0, apperr.BadRequest("invalid email")
	}
	if !allDigits(rec.EnrollmentNumber) {
		return 0, apperr.BadRequest("enrollment number must contain only digits")
	}

	newID, err := s.repo.Insert(ctx, rec)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return 0, apperr.Conflict("enrollment number or email already registered")
		}
		return 0, apperr.Internal("student.create", err)
	}
	return newID, nil
}

// Read returns a single record by id.
func (s *Service) Read(ctx context.Context, _ auth.Identity, recordID int64) (*Record, error) {
	rec, err := s.repo.Get(ctx, recordID)
	if err != nil {
		return nil, apperr.Internal("student.read", err)
	}
	if rec == nil {
		return nil, apperr.NotFound("student not found")
	}
	return rec, nil
}

// Update changes only the supplied fields, applying the same per-field
// validation rules as Create to the fields present. Email is trimmed but
// not lower-cased here, matching create-time normalization being the only
// normalization point.
func (s *Service) Update(ctx context.Context, id auth.Identity, recordID int64, f Fields) error {
	if err := auth.Authorize(id.Role, auth.RoleAdmin); err != nil {
		return err
	}

	columns := map[string]string{}
	if f.Name != nil {
		columns["name"] = strings.TrimSpace(*f.Name)
	}
	if f.EnrollmentNumber != nil {
		columns["enrollment_number"] = strings.TrimSpace(*f.EnrollmentNumber)
	}
	if f.Course != nil {
		columns["course"] = strings.TrimSpace(*f.Course)
	}
	if f.Email != nil {
		columns["email"] = strings.TrimSpace(*f.Email)
	}
	if len(columns) == 0 {
		return apperr.BadRequest("no fields provided for update")
	}
	for col, val := range columns {
		if val == "" {
			return apperr.BadRequest("field '" + col + "' must not be empty")
		}
	}
	if email, ok := columns["email"]; ok && !strings.Contains(email, "@") {
		return apperr.BadRequest("invalid email")
	}
	if num, ok := columns["enrollment_number"]; ok && !allDigits(num) {
		return apperr.BadRequest("enrollment number must contain only digits")
	}

	exists, err := s.repo.Exists(ctx, recordID)
	if err != nil {
		return apperr.Internal("student.update", err)
	}
	if !exists {
		return apperr.NotFound("student not found")
	}

	if err := s.repo.Update(ctx, recordID, columns); err != nil {
		if store.IsUniqueViolation(err) {
			return apperr.Conflict("enrollment number or email already registered")
		}
		return apperr.Internal("student.update", err)
	}
	return nil
}

// Delete removes a record permanently and irreversibly.
func (s *Service) Delete(ctx context.Context, id auth.Identity, recordID int64) error {
	if err := auth.Authorize(id.Role, auth.RoleAdmin); err != nil {
		return err
	}
	exists, err := s.repo.Exists(ctx, recordID)
	if err != nil {
		return apperr.Internal("student.delete", err)
	}
	if !exists {
		return apperr.NotFound("student not found")
	}
	if err := s.repo.Delete(ctx, recordID); err != nil {
		return apperr.Internal("student.delete", err)
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
