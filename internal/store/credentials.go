package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"titan/internal/logging"
)

// Credential is a stored secret. Value never appears in list output.
type Credential struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Value     string    `json:"value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCredential stores a named secret for the user. Name is unique per
// user.
func (s *SQLiteStore) CreateCredential(ctx context.Context, userID, name, value string) (*Credential, error) {
	cred := &Credential{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, user_id, name, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		cred.ID, userID, name, value, cred.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential %q: %w", name, err)
	}
	logging.Store("credential created: user=%s name=%s", userID, name)
	return cred, nil
}

// ListCredentials returns the user's credentials with values omitted.
func (s *SQLiteStore) ListCredentials(ctx context.Context, userID string) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at FROM credentials WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCredential fetches one credential by name, value included.
func (s *SQLiteStore) GetCredential(ctx context.Context, userID, name string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, value, created_at FROM credentials WHERE user_id = ? AND name = ?`,
		userID, name)
	var c Credential
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Value, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential %q: %w", name, err)
	}
	return &c, nil
}

// DeleteCredential removes the named credential.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, userID, name string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return fmt.Errorf("failed to delete credential %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	logging.Store("credential deleted: user=%s name=%s", userID, name)
	return nil
}
