package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docmanager/internal/domain"
)

const versionColumns = `id, document_id, version_number, is_current, file_key, file_size_bytes, file_hash,
        mime_type, original_filename, document_date, replaced_by, created_at, updated_at, deleted_at`

// VersionRepository журнал версий в PostgreSQL. Нумерация и смена текущей версии
// выполняются под блокировкой строки документа (SELECT ... FOR UPDATE).
type VersionRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

func NewVersionRepository(db *sqlx.DB, lockTimeout time.Duration) *VersionRepository {
	return &VersionRepository{db: db, lockTimeout: lockTimeout}
}

func versionNotFound(documentID uuid.UUID, what string) error {
	return &domain.Error{Kind: domain.KindNotFound, Message: fmt.Sprintf("%s not found for document %s", what, documentID)}
}

func insertVersion(ctx context.Context, tx *sqlx.Tx, v *domain.DocumentVersion) error {
	query := `
        INSERT INTO document_versions (id, document_id, version_number, is_current, file_key, file_size_bytes,
            file_hash, mime_type, original_filename, document_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING created_at, updated_at`

	err := tx.QueryRowContext(ctx, query,
		v.ID,
		v.DocumentID,
		v.VersionNumber,
		v.IsCurrent,
		v.FileKey,
		v.SizeBytes,
		v.FileHash,
		v.MIMEType,
		v.OriginalFilename,
		v.DocumentDate,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return translate(err, "insert version")
	}
	return nil
}

// lockDocument начинает транзакцию и блокирует строку документа
func (r *VersionRepository) lockDocument(ctx context.Context, documentID uuid.UUID) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return nil, translate(err, "set lock timeout")
		}
	}

	var id uuid.UUID
	err = tx.GetContext(ctx, &id, `SELECT id FROM documents WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, documentID)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, documentNotFound(documentID)
		}
		return nil, translate(err, "lock document")
	}
	return tx, nil
}

// flipCurrent снимает признак текущей с предыдущей версии, проставляет ей replaced_by
// и делает текущей target
func flipCurrent(ctx context.Context, tx *sqlx.Tx, documentID, target uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
        UPDATE document_versions
        SET is_current = FALSE, replaced_by = $1, updated_at = CURRENT_TIMESTAMP
        WHERE document_id = $2 AND is_current AND deleted_at IS NULL AND id <> $1`,
		target, documentID)
	if err != nil {
		return translate(err, "clear current version")
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE document_versions
        SET is_current = TRUE, replaced_by = NULL, updated_at = CURRENT_TIMESTAMP
        WHERE id = $1`,
		target)
	if err != nil {
		return translate(err, "set current version")
	}
	return nil
}

func getVersionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	if err := tx.GetContext(ctx, &v, `SELECT `+versionColumns+` FROM document_versions WHERE id = $1`, id); err != nil {
		return nil, translate(err, "reload version")
	}
	return &v, nil
}

// AppendVersion присваивает следующий номер и вставляет версию.
// Совпадение хеша с неудаленной версией: в строгом режиме DuplicateContent,
// иначе возвращается существующая версия.
func (r *VersionRepository) AppendVersion(ctx context.Context, v *domain.DocumentVersion, opts domain.AppendOptions) (*domain.DocumentVersion, bool, error) {
	tx, err := r.lockDocument(ctx, v.DocumentID)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var existing domain.DocumentVersion
	err = tx.GetContext(ctx, &existing, `SELECT `+versionColumns+` FROM document_versions
        WHERE document_id = $1 AND file_hash = $2 AND deleted_at IS NULL`, v.DocumentID, v.FileHash)
	switch {
	case err == nil:
		if opts.Strict {
			return nil, false, &domain.Error{
				Kind:    domain.KindDuplicateContent,
				Message: fmt.Sprintf("file content already exists as version %d", existing.VersionNumber),
			}
		}
		if opts.SetCurrent && !existing.IsCurrent {
			if err := flipCurrent(ctx, tx, v.DocumentID, existing.ID); err != nil {
				return nil, false, err
			}
			reloaded, err := getVersionTx(ctx, tx, existing.ID)
			if err != nil {
				return nil, false, err
			}
			if err := tx.Commit(); err != nil {
				return nil, false, translate(err, "commit version")
			}
			return reloaded, true, nil
		}
		return &existing, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, translate(err, "find version by hash")
	}

	var next int
	err = tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(version_number), 0) + 1 FROM document_versions
        WHERE document_id = $1 AND deleted_at IS NULL`, v.DocumentID)
	if err != nil {
		return nil, false, translate(err, "compute next version number")
	}

	var hasCurrent bool
	err = tx.GetContext(ctx, &hasCurrent, `SELECT EXISTS (SELECT 1 FROM document_versions
        WHERE document_id = $1 AND is_current AND deleted_at IS NULL)`, v.DocumentID)
	if err != nil {
		return nil, false, translate(err, "check current version")
	}

	v.VersionNumber = next
	v.IsCurrent = false
	v.ReplacedBy = nil
	if err := insertVersion(ctx, tx, v); err != nil {
		return nil, false, err
	}

	if opts.SetCurrent || !hasCurrent {
		if err := flipCurrent(ctx, tx, v.DocumentID, v.ID); err != nil {
			return nil, false, err
		}
		v.IsCurrent = true
	}

	if err := tx.Commit(); err != nil {
		return nil, false, translate(err, "commit version")
	}
	return v, false, nil
}

func (r *VersionRepository) FindByHash(ctx context.Context, documentID uuid.UUID, hash string) (*domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	err := r.db.GetContext(ctx, &v, `SELECT `+versionColumns+` FROM document_versions
        WHERE document_id = $1 AND file_hash = $2 AND deleted_at IS NULL`, documentID, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, versionNotFound(documentID, "version with hash")
	}
	if err != nil {
		return nil, translate(err, "find version by hash")
	}
	return &v, nil
}

func (r *VersionRepository) GetCurrentVersion(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	err := r.db.GetContext(ctx, &v, `SELECT `+versionColumns+` FROM document_versions
        WHERE document_id = $1 AND is_current AND deleted_at IS NULL`, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, versionNotFound(documentID, "current version")
	}
	if err != nil {
		return nil, translate(err, "get current version")
	}
	return &v, nil
}

func (r *VersionRepository) GetVersion(ctx context.Context, documentID uuid.UUID, number int) (*domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	err := r.db.GetContext(ctx, &v, `SELECT `+versionColumns+` FROM document_versions
        WHERE document_id = $1 AND version_number = $2 AND deleted_at IS NULL`, documentID, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, versionNotFound(documentID, fmt.Sprintf("version %d", number))
	}
	if err != nil {
		return nil, translate(err, "get version")
	}
	return &v, nil
}

func (r *VersionRepository) ListVersions(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentVersion, error) {
	versions := []domain.DocumentVersion{}
	err := r.db.SelectContext(ctx, &versions, `SELECT `+versionColumns+` FROM document_versions
        WHERE document_id = $1 AND deleted_at IS NULL
        ORDER BY version_number DESC`, documentID)
	if err != nil {
		return nil, translate(err, "list versions")
	}
	return versions, nil
}

func (r *VersionRepository) CountVersions(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM document_versions
        WHERE document_id = $1 AND deleted_at IS NULL`, documentID)
	if err != nil {
		return 0, translate(err, "count versions")
	}
	return count, nil
}

func (r *VersionRepository) LatestVersionNumber(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COALESCE(MAX(version_number), 0) FROM document_versions
        WHERE document_id = $1 AND deleted_at IS NULL`, documentID)
	if err != nil {
		return 0, translate(err, "get latest version number")
	}
	return n, nil
}

// SetCurrentVersion переносит признак текущей версии (откат к более ранней)
func (r *VersionRepository) SetCurrentVersion(ctx context.Context, documentID, versionID uuid.UUID) (*domain.DocumentVersion, error) {
	tx, err := r.lockDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var target domain.DocumentVersion
	err = tx.GetContext(ctx, &target, `SELECT `+versionColumns+` FROM document_versions
        WHERE id = $1 AND document_id = $2 AND deleted_at IS NULL`, versionID, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, versionNotFound(documentID, "version "+versionID.String())
	}
	if err != nil {
		return nil, translate(err, "get version")
	}
	if target.IsCurrent {
		return &target, nil
	}

	if err := flipCurrent(ctx, tx, documentID, versionID); err != nil {
		return nil, err
	}
	current, err := getVersionTx(ctx, tx, versionID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, translate(err, "commit current version")
	}
	return current, nil
}

// SoftDeleteLatestVersion удаляет версию с наибольшим номером; если она была текущей,
// текущей становится предыдущая
func (r *VersionRepository) SoftDeleteLatestVersion(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	tx, err := r.lockDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var latest domain.DocumentVersion
	err = tx.GetContext(ctx, &latest, `SELECT `+versionColumns+` FROM document_versions
        WHERE document_id = $1 AND deleted_at IS NULL
        ORDER BY version_number DESC LIMIT 1`, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, versionNotFound(documentID, "versions")
	}
	if err != nil {
		return nil, translate(err, "get latest version")
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE document_versions
        SET is_current = FALSE, deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
        WHERE id = $1`, latest.ID)
	if err != nil {
		return nil, translate(err, "soft delete version")
	}

	if latest.IsCurrent {
		var previous uuid.UUID
		err = tx.GetContext(ctx, &previous, `SELECT id FROM document_versions
            WHERE document_id = $1 AND deleted_at IS NULL
            ORDER BY version_number DESC LIMIT 1`, documentID)
		switch {
		case err == nil:
			if err := flipCurrent(ctx, tx, documentID, previous); err != nil {
				return nil, err
			}
		case !errors.Is(err, sql.ErrNoRows):
			return nil, translate(err, "get previous version")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, translate(err, "commit version delete")
	}
	now := time.Now().UTC()
	latest.IsCurrent = false
	latest.DeletedAt = &now
	return &latest, nil
}
