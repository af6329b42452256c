package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// DBAppender appends records to the audit_records table. The table is
// created by the session store migrations.
type DBAppender struct {
	db *sql.DB
}

// NewDBAppender creates a database-backed appender
func NewDBAppender(db *sql.DB) (*DBAppender, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBAppender{db: db}, nil
}

// Append inserts rec and stores the generated id on it
func (a *DBAppender) Append(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	var details sql.NullString
	if len(rec.Details) > 0 {
		raw, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO audit_records (
			actor_id, actor_email, action, target_type, target_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := a.db.QueryRowContext(ctx, query,
		rec.ActorID,
		rec.ActorEmail,
		string(rec.Action),
		nullable(string(rec.TargetType)),
		nullable(rec.TargetID),
		details,
		rec.Timestamp,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// List returns records matching filter, newest first
func (a *DBAppender) List(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		clauses = append(clauses, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		clauses = append(clauses, fmt.Sprintf("action = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT id, actor_id, actor_email, action, target_type, target_id, details, created_at FROM audit_records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, filter.EffectiveLimit())
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			action     string
			targetType sql.NullString
			targetID   sql.NullString
			details    sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.ActorEmail, &action, &targetType, &targetID, &details, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Action = Action(action)
		rec.TargetType = TargetType(targetType.String)
		rec.TargetID = targetID.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &rec.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}
	return records, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
