package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"docmanager/internal/domain"
)

// DocumentTypeRepository каталог типов документов в таблице document_types
type DocumentTypeRepository struct {
	db          *sqlx.DB
	defaultCode string
}

func NewDocumentTypeRepository(db *sqlx.DB, defaultCode string) *DocumentTypeRepository {
	return &DocumentTypeRepository{db: db, defaultCode: defaultCode}
}

func (r *DocumentTypeRepository) GetType(ctx context.Context, code string) (*domain.DocumentType, error) {
	var t domain.DocumentType
	err := r.db.GetContext(ctx, &t, `SELECT * FROM document_types WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.Error{Kind: domain.KindUnknownTypeCode, Message: fmt.Sprintf("unknown document type: %s", code)}
	}
	if err != nil {
		return nil, translate(err, "get document type")
	}
	return &t, nil
}

func (r *DocumentTypeRepository) GetDefaultType(ctx context.Context) (*domain.DocumentType, error) {
	return r.GetType(ctx, r.defaultCode)
}

func (r *DocumentTypeRepository) List(ctx context.Context) ([]domain.DocumentType, error) {
	types := []domain.DocumentType{}
	if err := r.db.SelectContext(ctx, &types, `SELECT * FROM document_types ORDER BY code`); err != nil {
		return nil, translate(err, "list document types")
	}
	return types, nil
}

// Upsert синхронизирует типы из файла каталога в одной транзакции
func (r *DocumentTypeRepository) Upsert(ctx context.Context, types []domain.DocumentType) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO document_types (code, name, description, file_extensions, max_file_size_mb,
            max_count_per_owner, requires_validation, is_financial)
        VALUES (:code, :name, :description, :file_extensions, :max_file_size_mb,
            :max_count_per_owner, :requires_validation, :is_financial)
        ON CONFLICT (code) DO UPDATE SET
            name = EXCLUDED.name,
            description = EXCLUDED.description,
            file_extensions = EXCLUDED.file_extensions,
            max_file_size_mb = EXCLUDED.max_file_size_mb,
            max_count_per_owner = EXCLUDED.max_count_per_owner,
            requires_validation = EXCLUDED.requires_validation,
            is_financial = EXCLUDED.is_financial,
            updated_at = CURRENT_TIMESTAMP`

	for _, t := range types {
		if _, err := tx.NamedExecContext(ctx, query, t); err != nil {
			return translate(err, "upsert document type "+t.Code)
		}
	}

	if err := tx.Commit(); err != nil {
		return translate(err, "commit document types")
	}
	return nil
}
