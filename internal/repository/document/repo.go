// Package document persists documents in the relational store.
package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ragline/ragline/internal/domain"
)

// Repo implements document persistence over database/sql.
type Repo struct {
	db *sql.DB
}

// New creates a document repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Create inserts a new document row.
func (r *Repo) Create(ctx context.Context, doc *domain.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, user_id, file_name, file_type, size_bytes, storage_key,
			 status, error_message, text, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.FileName, string(doc.FileType), doc.SizeBytes,
		doc.StorageKey, string(doc.Status), doc.ErrorMessage, doc.Text,
		string(meta), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get returns a document by id.
func (r *Repo) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, file_name, file_type, size_bytes, storage_key,
		       status, error_message, text, metadata, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListByUser returns a user's documents, optionally filtered by status,
// newest first.
func (r *Repo) ListByUser(ctx context.Context, userID string, status domain.Status) ([]*domain.Document, error) {
	query := `
		SELECT id, user_id, file_name, file_type, size_bytes, storage_key,
		       status, error_message, text, metadata, created_at, updated_at
		FROM documents WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// SetStatus updates the lifecycle status and error message.
func (r *Repo) SetStatus(ctx context.Context, id string, status domain.Status, errorMessage string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		string(status), errorMessage, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return checkAffected(res)
}

// SetExtraction persists extracted text and structural metadata.
func (r *Repo) SetExtraction(ctx context.Context, id, text string, meta domain.DocumentMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET text = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		text, string(data), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update extraction: %w", err)
	}
	return checkAffected(res)
}

// SetMetadata replaces the stored metadata (retry counter, index bookkeeping).
func (r *Repo) SetMetadata(ctx context.Context, id string, meta domain.DocumentMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc      domain.Document
		fileType string
		status   string
		meta     string
	)
	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.FileName, &fileType, &doc.SizeBytes,
		&doc.StorageKey, &status, &doc.ErrorMessage, &doc.Text, &meta,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.FileType = domain.FileType(fileType)
	doc.Status = domain.Status(status)
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &doc, nil
}
