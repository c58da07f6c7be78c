package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"docmanager/internal/domain"
)

const documentColumns = `id, owner_kind, owner_id, document_type_code, title, description,
        validation_status, validated_by, validation_date, validation_notes, validation_errors,
        ai_extracted_data, ai_confidence_score, access_level, is_confidential, expiration_date,
        created_at, updated_at, deleted_at`

type DocumentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func documentNotFound(id uuid.UUID) error {
	return &domain.Error{Kind: domain.KindNotFound, Message: fmt.Sprintf("document not found: %s", id)}
}

// CreateDocument сохраняет документ и первую версию в одной транзакции.
// Лимит документов одного типа на владельца проверяется под advisory-блокировкой владельца.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *domain.Document, first *domain.DocumentVersion, maxPerOwner int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if maxPerOwner > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doc.OwnerID.String()); err != nil {
			return translate(err, "lock owner")
		}

		var count int
		err = tx.GetContext(ctx, &count, `
            SELECT COUNT(*) FROM documents
            WHERE owner_id = $1 AND document_type_code = $2 AND deleted_at IS NULL`,
			doc.OwnerID, doc.DocumentTypeCode)
		if err != nil {
			return translate(err, "count owner documents")
		}
		if count >= maxPerOwner {
			return domain.NewValidationError(domain.CodeMaxCountExceeded,
				fmt.Sprintf("owner already has %d documents of type %s", count, doc.DocumentTypeCode))
		}
	}

	if doc.AIExtractedData == nil {
		doc.AIExtractedData = []byte("{}")
	}
	if doc.ValidationErrors == nil {
		doc.ValidationErrors = pq.StringArray{}
	}

	query := `
        INSERT INTO documents (id, owner_kind, owner_id, document_type_code, title, description,
            validation_status, validation_errors, ai_extracted_data, access_level, is_confidential, expiration_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING created_at, updated_at`

	err = tx.QueryRowContext(ctx, query,
		doc.ID,
		doc.OwnerKind,
		doc.OwnerID,
		doc.DocumentTypeCode,
		doc.Title,
		doc.Description,
		doc.ValidationStatus,
		doc.ValidationErrors,
		doc.AIExtractedData,
		doc.AccessLevel,
		doc.IsConfidential,
		doc.ExpirationDate,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return translate(err, "insert document")
	}

	if first != nil {
		first.DocumentID = doc.ID
		first.VersionNumber = 1
		first.IsCurrent = true
		if err := insertVersion(ctx, tx, first); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return translate(err, "commit document")
	}
	return nil
}

func (r *DocumentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &doc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, documentNotFound(id)
	}
	if err != nil {
		return nil, translate(err, "get document")
	}
	return &doc, nil
}

func (r *DocumentRepository) exec(ctx context.Context, id uuid.UUID, action, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err, action)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return documentNotFound(id)
	}
	return nil
}

func (r *DocumentRepository) UpdateValidation(ctx context.Context, doc *domain.Document) error {
	query := `
        UPDATE documents
        SET validation_status = $1,
            validated_by = $2,
            validation_date = $3,
            validation_notes = $4,
            validation_errors = $5,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $6 AND deleted_at IS NULL`

	return r.exec(ctx, doc.ID, "update validation", query,
		doc.ValidationStatus, doc.ValidatedBy, doc.ValidationDate, doc.ValidationNotes, doc.ValidationErrors, doc.ID)
}

func (r *DocumentRepository) UpdateAccess(ctx context.Context, doc *domain.Document) error {
	query := `
        UPDATE documents
        SET access_level = $1, is_confidential = $2, updated_at = CURRENT_TIMESTAMP
        WHERE id = $3 AND deleted_at IS NULL`

	return r.exec(ctx, doc.ID, "update access", query, doc.AccessLevel, doc.IsConfidential, doc.ID)
}

func (r *DocumentRepository) UpdateAIResult(ctx context.Context, doc *domain.Document) error {
	data := doc.AIExtractedData
	if data == nil {
		data = []byte("{}")
	}
	query := `
        UPDATE documents
        SET ai_extracted_data = $1, ai_confidence_score = $2, updated_at = CURRENT_TIMESTAMP
        WHERE id = $3 AND deleted_at IS NULL`

	return r.exec(ctx, doc.ID, "update ai result", query, data, doc.AIConfidence, doc.ID)
}

func (r *DocumentRepository) SoftDeleteDocument(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE documents
        SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
        WHERE id = $1 AND deleted_at IS NULL`

	return r.exec(ctx, id, "soft delete document", query, id)
}

// RestoreDocument снимает пометку удаления; занятый заголовок дает DuplicateTitle
func (r *DocumentRepository) RestoreDocument(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id); err != nil {
		return translate(err, "check document")
	}
	if !exists {
		return documentNotFound(id)
	}

	query := `
        UPDATE documents
        SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP
        WHERE id = $1 AND deleted_at IS NOT NULL`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return translate(err, "restore document")
	}
	return nil
}

// ListByOwner использует упорядоченность идентификаторов по времени:
// "последние N" это сортировка по id, "начиная с T" это диапазон по id
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter domain.DocumentFilter) ([]domain.Document, error) {
	var (
		conditions = []string{"owner_id = $1", "deleted_at IS NULL"}
		args       = []interface{}{ownerID}
	)
	if filter.TypeCode != "" {
		args = append(args, filter.TypeCode)
		conditions = append(conditions, fmt.Sprintf("document_type_code = $%d", len(args)))
	}
	if filter.SinceID != nil {
		args = append(args, *filter.SinceID)
		conditions = append(conditions, fmt.Sprintf("id >= $%d", len(args)))
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	docs := []domain.Document{}
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, translate(err, "list owner documents")
	}
	return docs, nil
}

func (r *DocumentRepository) ListExpired(ctx context.Context, before time.Time) ([]domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
        WHERE deleted_at IS NULL AND expiration_date IS NOT NULL AND expiration_date < $1
        ORDER BY id`

	docs := []domain.Document{}
	if err := r.db.SelectContext(ctx, &docs, query, before); err != nil {
		return nil, translate(err, "list expired documents")
	}
	return docs, nil
}

func (r *DocumentRepository) SoftDeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
        UPDATE documents
        SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
        WHERE deleted_at IS NULL AND expiration_date IS NOT NULL AND expiration_date < $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, translate(err, "soft delete expired documents")
	}
	return result.RowsAffected()
}
