package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"docmanager/internal/domain"
)

// OwnerRepository работает с таблицами владельцев, описанными через domain.OwnerKind.
// Имена таблиц и колонок проверяются при регистрации вида владельца.
type OwnerRepository struct {
	db *sqlx.DB
}

func NewOwnerRepository(db *sqlx.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

func selectOwner(kind domain.OwnerKind) string {
	return fmt.Sprintf(`SELECT %s AS pk, %s AS key, %s AS owner_id FROM %s`,
		kind.PKColumn, kind.KeyColumn, kind.IDColumn, kind.Table)
}

func returningOwner(kind domain.OwnerKind) string {
	return fmt.Sprintf(`RETURNING %s AS pk, %s AS key, %s AS owner_id`, kind.PKColumn, kind.KeyColumn, kind.IDColumn)
}

func ownerNotFound(kind domain.OwnerKind, ref interface{}) error {
	return &domain.Error{Kind: domain.KindOwnerNotFound, Message: fmt.Sprintf("%s not found: %v", kind.Name, ref)}
}

// translateOwner переводит нарушение уникальности колонки идентификатора в коллизию
func translateOwner(err error, kind domain.OwnerKind, action string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation &&
		strings.Contains(pqErr.Constraint, kind.IDColumn) {
		return fmt.Errorf("%w: %s", domain.ErrIdentifierCollision, pqErr.Constraint)
	}
	return translate(err, action)
}

func (r *OwnerRepository) findOne(ctx context.Context, kind domain.OwnerKind, column string, value, ref interface{}) (*domain.Owner, error) {
	var owner domain.Owner
	query := selectOwner(kind) + fmt.Sprintf(` WHERE %s = $1`, column)

	err := r.db.GetContext(ctx, &owner, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ownerNotFound(kind, ref)
	}
	if err != nil {
		return nil, translate(err, "get owner")
	}
	owner.Kind = kind.Name
	return &owner, nil
}

func (r *OwnerRepository) FindByOwnerID(ctx context.Context, kind domain.OwnerKind, id uuid.UUID) (*domain.Owner, error) {
	return r.findOne(ctx, kind, kind.IDColumn, id, id)
}

func (r *OwnerRepository) FindByPK(ctx context.Context, kind domain.OwnerKind, pk int64) (*domain.Owner, error) {
	return r.findOne(ctx, kind, kind.PKColumn, pk, pk)
}

func (r *OwnerRepository) FindByKey(ctx context.Context, kind domain.OwnerKind, key string) (*domain.Owner, error) {
	return r.findOne(ctx, kind, kind.KeyColumn, key, key)
}

// AssignIdentifier условное обновление: идентификатор пишется, только если он пуст
func (r *OwnerRepository) AssignIdentifier(ctx context.Context, kind domain.OwnerKind, pk int64, id uuid.UUID) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2 AND %s IS NULL`,
		kind.Table, kind.IDColumn, kind.PKColumn, kind.IDColumn)

	result, err := r.db.ExecContext(ctx, query, id, pk)
	if err != nil {
		return false, translateOwner(err, kind, "assign owner identifier")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 1 {
		return true, nil
	}

	// Строка либо отсутствует, либо идентификатор уже записан
	if _, err := r.FindByPK(ctx, kind, pk); err != nil {
		return false, err
	}
	return false, nil
}

// InsertWithIdentifier вставляет строку сразу с идентификатором; при конфликте ключа
// возвращает существующую строку
func (r *OwnerRepository) InsertWithIdentifier(ctx context.Context, kind domain.OwnerKind, key string, id uuid.UUID) (*domain.Owner, bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT (%s) DO NOTHING `,
		kind.Table, kind.KeyColumn, kind.IDColumn, kind.KeyColumn) + returningOwner(kind)

	var owner domain.Owner
	err := r.db.GetContext(ctx, &owner, query, key, id)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := r.FindByKey(ctx, kind, key)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, translateOwner(err, kind, "insert owner")
	}
	owner.Kind = kind.Name
	return &owner, true, nil
}

// BulkInsert вставляет пачку строк одним запросом через unnest
func (r *OwnerRepository) BulkInsert(ctx context.Context, kind domain.OwnerKind, keys []string, ids []uuid.UUID) ([]domain.Owner, error) {
	if len(keys) != len(ids) {
		return nil, fmt.Errorf("keys and identifiers length mismatch: %d != %d", len(keys), len(ids))
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s, %s)
        SELECT k, i::uuid FROM unnest($1::text[], $2::text[]) AS t(k, i) `,
		kind.Table, kind.KeyColumn, kind.IDColumn) + returningOwner(kind)

	owners := []domain.Owner{}
	if err := r.db.SelectContext(ctx, &owners, query, pq.Array(keys), pq.Array(idStrings)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation &&
			strings.Contains(pqErr.Constraint, kind.KeyColumn) {
			return nil, domain.NewValidationError(domain.CodeInvalidOwnerField, "owner key already exists")
		}
		return nil, translateOwner(err, kind, "bulk insert owners")
	}
	for i := range owners {
		owners[i].Kind = kind.Name
	}
	return owners, nil
}

// UpdateFields обновляет произвольные колонки строки владельца; колонка идентификатора запрещена
func (r *OwnerRepository) UpdateFields(ctx context.Context, kind domain.OwnerKind, pk int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	columns := make([]string, 0, len(fields))
	for column := range fields {
		if column == kind.IDColumn {
			return fmt.Errorf("column %s is write-once", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	sets := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, column := range columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, i+1))
		args = append(args, fields[column])
	}
	args = append(args, pk)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d`,
		kind.Table, strings.Join(sets, ", "), kind.PKColumn, len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err, "update owner")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ownerNotFound(kind, pk)
	}
	return nil
}

func (r *OwnerRepository) ListMissingIdentifiers(ctx context.Context, kind domain.OwnerKind, limit int) ([]domain.Owner, error) {
	query := selectOwner(kind) + fmt.Sprintf(` WHERE %s IS NULL ORDER BY %s LIMIT $1`, kind.IDColumn, kind.PKColumn)

	owners := []domain.Owner{}
	if err := r.db.SelectContext(ctx, &owners, query, limit); err != nil {
		return nil, translate(err, "list owners without identifier")
	}
	for i := range owners {
		owners[i].Kind = kind.Name
	}
	return owners, nil
}

func (r *OwnerRepository) CountMissingIdentifiers(ctx context.Context, kind domain.OwnerKind) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NULL`, kind.Table, kind.IDColumn)
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, translate(err, "count owners without identifier")
	}
	return count, nil
}
