package agenda

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ProfessionalDirectory resolves professional display names from the
// professionals table, which mirrors the user store this service does not
// own.
type ProfessionalDirectory struct {
	db DB
}

// NewProfessionalDirectory creates a directory backed by the database.
func NewProfessionalDirectory(db DB) *ProfessionalDirectory {
	return &ProfessionalDirectory{db: db}
}

// ProfessionalName returns the display name for a professional or ErrNotFound.
func (d *ProfessionalDirectory) ProfessionalName(ctx context.Context, professionalID string) (string, error) {
	var name string
	err := d.db.QueryRow(ctx, `SELECT name FROM professionals WHERE id = $1`, professionalID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("agenda: professional name: %w", err)
	}
	return name, nil
}
