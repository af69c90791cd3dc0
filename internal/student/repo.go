package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"studentadmin/internal/store"
)

// Record is a stored student row. The id is system-assigned and immutable;
// enrollment number and email are unique across all records.
type Record struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	EnrollmentNumber string `json:"enrollment_number"`
	Course           string `json:"course"`
	Email            string `json:"email"`
}

// Repository persists student records.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new record and returns its assigned id. Uniqueness
// violations are returned raw for the service to translate.
func (r *Repository) Insert(ctx context.Context, rec Record) (int64, error) {
	if r.db.Driver == store.DriverPostgres {
		var id int64
		err := r.db.SQL.QueryRowContext(ctx, `
			INSERT INTO students (name, enrollment_number, course, email)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, rec.Name, rec.EnrollmentNumber, rec.Course, rec.Email).Scan(&id)
		return id, err
	}
	res, err := r.db.SQL.ExecContext(ctx, `
		INSERT INTO students (name, enrollment_number, course, email)
		VALUES ($1, $2, $3, $4)
	`, rec.Name, rec.EnrollmentNumber, rec.Course, rec.Email)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// List returns one page of records ordered by id, stable across calls with
// unchanged data.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Record, error) {
	rows, err := r.db.SQL.QueryContext(ctx, `
		SELECT id, name, enrollment_number, course, email
		FROM students
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.EnrollmentNumber, &rec.Course, &rec.Email); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Count returns the total number of records, independent of pagination.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.SQL.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&total)
	return total, err
}

// Get returns the record with the given id, or nil when none exists.
func (r *Repository) Get(ctx context.Context, id int64) (*Record, error) {
	row := r.db.SQL.QueryRowContext(ctx, `
		SELECT id, name, enrollment_number, course, email
		FROM students WHERE id = $1
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.Name, &rec.EnrollmentNumber, &rec.Course, &rec.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Exists reports whether a record with the given id is stored.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var found int64
	err := r.db.SQL.QueryRowContext(ctx, `SELECT id FROM students WHERE id = $1`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Update changes only the given columns. columns maps column name to the
// new value; the caller guarantees names are from the recognized set.
func (r *Repository) Update(ctx context.Context, id int64, columns map[string]string) error {
	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+1)
	for _, col := range []string{"name", "enrollment_number", "course", "email"} {
		if val, ok := columns[col]; ok {
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)+1))
			args = append(args, val)
		}
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE students SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	_, err := r.db.SQL.ExecContext(ctx, query, args...)
	return err
}

// Delete removes the record permanently.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.SQL.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	return err
}
