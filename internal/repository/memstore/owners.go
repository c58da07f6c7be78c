package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"docmanager/internal/domain"
)

func ownerNotFound(kind domain.OwnerKind, ref interface{}) error {
	return &domain.Error{
		Kind:    domain.KindOwnerNotFound,
		Message: fmt.Sprintf("%s not found: %v", kind.Name, ref),
	}
}

func (s *Store) table(kind domain.OwnerKind) *ownerTable {
	t, ok := s.owners[kind.Name]
	if !ok {
		t = &ownerTable{rows: make(map[int64]*ownerRow)}
		s.owners[kind.Name] = t
	}
	return t
}

func (s *Store) identifierTaken(kind domain.OwnerKind, id uuid.UUID) bool {
	for _, row := range s.table(kind).rows {
		if row.owner.OwnerID != nil && *row.owner.OwnerID == id {
			return true
		}
	}
	return false
}

func (s *Store) keyRow(kind domain.OwnerKind, key string) *ownerRow {
	for _, row := range s.table(kind).rows {
		if row.owner.Key == key {
			return row
		}
	}
	return nil
}

func (s *Store) insertRow(kind domain.OwnerKind, key string, id *uuid.UUID) *ownerRow {
	t := s.table(kind)
	t.nextPK++
	row := &ownerRow{
		owner:  domain.Owner{Kind: kind.Name, PK: t.nextPK, Key: key},
		fields: make(map[string]interface{}),
	}
	if id != nil {
		v := *id
		row.owner.OwnerID = &v
	}
	t.rows[row.owner.PK] = row
	return row
}

func (r *ownerRow) snapshot() *domain.Owner {
	o := r.owner
	if r.owner.OwnerID != nil {
		id := *r.owner.OwnerID
		o.OwnerID = &id
	}
	return &o
}

// InsertOwner добавляет строку владельца без идентификатора, как это делает
// приложение, которому принадлежит таблица
func (s *Store) InsertOwner(kind domain.OwnerKind, key string) domain.Owner {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.insertRow(kind, key, nil).snapshot()
}

// Fields возвращает значения дополнительных колонок строки владельца
func (s *Store) Fields(kind domain.OwnerKind, pk int64) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.table(kind).rows[pk]
	if !ok {
		return nil
	}
	fields := make(map[string]interface{}, len(row.fields))
	for k, v := range row.fields {
		fields[k] = v
	}
	return fields
}

func (s *Store) FindByOwnerID(ctx context.Context, kind domain.OwnerKind, id uuid.UUID) (*domain.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.table(kind).rows {
		if row.owner.OwnerID != nil && *row.owner.OwnerID == id {
			return row.snapshot(), nil
		}
	}
	return nil, ownerNotFound(kind, id)
}

func (s *Store) FindByPK(ctx context.Context, kind domain.OwnerKind, pk int64) (*domain.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.table(kind).rows[pk]
	if !ok {
		return nil, ownerNotFound(kind, pk)
	}
	return row.snapshot(), nil
}

func (s *Store) FindByKey(ctx context.Context, kind domain.OwnerKind, key string) (*domain.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.keyRow(kind, key)
	if row == nil {
		return nil, ownerNotFound(kind, key)
	}
	return row.snapshot(), nil
}

func (s *Store) AssignIdentifier(ctx context.Context, kind domain.OwnerKind, pk int64, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.table(kind).rows[pk]
	if !ok {
		return false, ownerNotFound(kind, pk)
	}
	if row.owner.OwnerID != nil {
		return false, nil
	}
	if s.identifierTaken(kind, id) {
		return false, domain.ErrIdentifierCollision
	}
	v := id
	row.owner.OwnerID = &v
	return true, nil
}

func (s *Store) InsertWithIdentifier(ctx context.Context, kind domain.OwnerKind, key string, id uuid.UUID) (*domain.Owner, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row := s.keyRow(kind, key); row != nil {
		return row.snapshot(), false, nil
	}
	if s.identifierTaken(kind, id) {
		return nil, false, domain.ErrIdentifierCollision
	}
	return s.insertRow(kind, key, &id).snapshot(), true, nil
}

func (s *Store) BulkInsert(ctx context.Context, kind domain.OwnerKind, keys []string, ids []uuid.UUID) ([]domain.Owner, error) {
	if len(keys) != len(ids) {
		return nil, fmt.Errorf("keys and identifiers length mismatch: %d != %d", len(keys), len(ids))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seenKeys := make(map[string]struct{}, len(keys))
	seenIDs := make(map[uuid.UUID]struct{}, len(ids))
	for i, key := range keys {
		if _, dup := seenKeys[key]; dup || s.keyRow(kind, key) != nil {
			return nil, &domain.Error{
				Kind:    domain.KindValidation,
				Code:    domain.CodeInvalidOwnerField,
				Message: fmt.Sprintf("owner key %q already exists", key),
			}
		}
		if _, dup := seenIDs[ids[i]]; dup || s.identifierTaken(kind, ids[i]) {
			return nil, domain.ErrIdentifierCollision
		}
		seenKeys[key] = struct{}{}
		seenIDs[ids[i]] = struct{}{}
	}

	owners := make([]domain.Owner, 0, len(keys))
	for i, key := range keys {
		id := ids[i]
		owners = append(owners, *s.insertRow(kind, key, &id).snapshot())
	}
	return owners, nil
}

func (s *Store) UpdateFields(ctx context.Context, kind domain.OwnerKind, pk int64, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.table(kind).rows[pk]
	if !ok {
		return ownerNotFound(kind, pk)
	}
	for column, value := range fields {
		switch column {
		case kind.IDColumn:
			return fmt.Errorf("column %s is write-once", column)
		case kind.KeyColumn:
			key, ok := value.(string)
			if !ok {
				return domain.NewValidationError(domain.CodeInvalidOwnerField, "owner key must be a string")
			}
			row.owner.Key = key
		default:
			row.fields[column] = value
		}
	}
	return nil
}

func (s *Store) missing(kind domain.OwnerKind) []*ownerRow {
	var rows []*ownerRow
	for _, row := range s.table(kind).rows {
		if row.owner.OwnerID == nil {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].owner.PK < rows[j].owner.PK })
	return rows
}

func (s *Store) ListMissingIdentifiers(ctx context.Context, kind domain.OwnerKind, limit int) ([]domain.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.missing(kind)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	owners := make([]domain.Owner, 0, len(rows))
	for _, row := range rows {
		owners = append(owners, *row.snapshot())
	}
	return owners, nil
}

func (s *Store) CountMissingIdentifiers(ctx context.Context, kind domain.OwnerKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.missing(kind)), nil
}
