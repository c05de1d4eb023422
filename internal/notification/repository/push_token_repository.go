package repository

import (
	"context"
	"database/sql"
	"fmt"
)

type MySQLPushTokenRepository struct {
	db *sql.DB
}

func NewMySQLPushTokenRepository(db *sql.DB) *MySQLPushTokenRepository {
	return &MySQLPushTokenRepository{db: db}
}

// Upsert binds token to userID. A token moves to the latest user that
// registers it.
func (r *MySQLPushTokenRepository) Upsert(ctx context.Context, userID, token string) error {
	query := `
		INSERT INTO PushTokens (token, userId) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE userId = VALUES(userId)
	`

	if _, err := r.db.ExecContext(ctx, query, token, userID); err != nil {
		return fmt.Errorf("upserting push token: %w", err)
	}
	return nil
}

func (r *MySQLPushTokenRepository) FindByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT token FROM PushTokens WHERE userId = ? ORDER BY createdAt`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning push token: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating push tokens: %w", err)
	}

	return tokens, nil
}

// Delete removes a token the push provider reported as unregistered.
func (r *MySQLPushTokenRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM PushTokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting push token: %w", err)
	}
	return nil
}
