// Package memstore хранит документы, версии и владельцев в памяти процесса.
// Используется в режиме разработки и в тестах; семантика совпадает с PostgreSQL-хранилищем.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docmanager/internal/domain"
)

type ownerTable struct {
	nextPK int64
	rows   map[int64]*ownerRow
}

type ownerRow struct {
	owner  domain.Owner
	fields map[string]interface{}
}

// Store один мьютекс на все данные: любая операция выполняется целиком или не выполняется
type Store struct {
	mu         sync.Mutex
	documents  map[uuid.UUID]*domain.Document
	versions   map[uuid.UUID][]*domain.DocumentVersion
	versionIDs map[uuid.UUID]struct{}
	owners     map[string]*ownerTable
	now        func() time.Time
}

func New() *Store {
	return &Store{
		documents:  make(map[uuid.UUID]*domain.Document),
		versions:   make(map[uuid.UUID][]*domain.DocumentVersion),
		versionIDs: make(map[uuid.UUID]struct{}),
		owners:     make(map[string]*ownerTable),
		now:        time.Now,
	}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func notFound(what string, id interface{}) error {
	return &domain.Error{Kind: domain.KindNotFound, Message: fmt.Sprintf("%s not found: %v", what, id)}
}

func copyDocument(d *domain.Document) *domain.Document {
	c := *d
	c.ValidationErrors = append([]string(nil), d.ValidationErrors...)
	return &c
}

func copyVersion(v *domain.DocumentVersion) *domain.DocumentVersion {
	c := *v
	return &c
}

// ---- documents ----

func (s *Store) liveDocument(id uuid.UUID) (*domain.Document, error) {
	d, ok := s.documents[id]
	if !ok || d.IsDeleted() {
		return nil, notFound("document", id)
	}
	return d, nil
}

func (s *Store) titleTaken(ownerID uuid.UUID, title string, except uuid.UUID) bool {
	for _, d := range s.documents {
		if d.ID != except && !d.IsDeleted() && d.OwnerID == ownerID && d.Title == title {
			return true
		}
	}
	return false
}

func (s *Store) CreateDocument(ctx context.Context, doc *domain.Document, first *domain.DocumentVersion, maxPerOwner int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; exists {
		return domain.ErrIdentifierCollision
	}
	if s.titleTaken(doc.OwnerID, doc.Title, uuid.Nil) {
		return &domain.Error{
			Kind:    domain.KindDuplicateTitle,
			Message: fmt.Sprintf("document with title %q already exists for this owner", doc.Title),
		}
	}
	if maxPerOwner > 0 {
		count := 0
		for _, d := range s.documents {
			if !d.IsDeleted() && d.OwnerID == doc.OwnerID && d.DocumentTypeCode == doc.DocumentTypeCode {
				count++
			}
		}
		if count >= maxPerOwner {
			return domain.NewValidationError(domain.CodeMaxCountExceeded,
				fmt.Sprintf("owner already has %d documents of type %s", count, doc.DocumentTypeCode))
		}
	}
	if first != nil {
		if _, exists := s.versionIDs[first.ID]; exists {
			return domain.ErrIdentifierCollision
		}
	}

	now := s.timestamp()
	doc.CreatedAt, doc.UpdatedAt, doc.DeletedAt = now, now, nil
	s.documents[doc.ID] = copyDocument(doc)

	if first != nil {
		first.DocumentID = doc.ID
		first.VersionNumber = 1
		first.IsCurrent = true
		first.CreatedAt, first.UpdatedAt, first.DeletedAt = now, now, nil
		s.versions[doc.ID] = []*domain.DocumentVersion{copyVersion(first)}
		s.versionIDs[first.ID] = struct{}{}
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.liveDocument(id)
	if err != nil {
		return nil, err
	}
	return copyDocument(d), nil
}

func (s *Store) update(id uuid.UUID, apply func(d *domain.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.liveDocument(id)
	if err != nil {
		return err
	}
	apply(d)
	d.UpdatedAt = s.timestamp()
	return nil
}

func (s *Store) UpdateValidation(ctx context.Context, doc *domain.Document) error {
	return s.update(doc.ID, func(d *domain.Document) {
		d.ValidationStatus = doc.ValidationStatus
		d.ValidatedBy = doc.ValidatedBy
		d.ValidationDate = doc.ValidationDate
		d.ValidationNotes = doc.ValidationNotes
		d.ValidationErrors = append([]string(nil), doc.ValidationErrors...)
	})
}

func (s *Store) UpdateAccess(ctx context.Context, doc *domain.Document) error {
	return s.update(doc.ID, func(d *domain.Document) {
		d.AccessLevel = doc.AccessLevel
		d.IsConfidential = doc.IsConfidential
	})
}

func (s *Store) UpdateAIResult(ctx context.Context, doc *domain.Document) error {
	return s.update(doc.ID, func(d *domain.Document) {
		d.AIExtractedData = append(d.AIExtractedData[:0:0], doc.AIExtractedData...)
		d.AIConfidence = doc.AIConfidence
	})
}

func (s *Store) SoftDeleteDocument(ctx context.Context, id uuid.UUID) error {
	return s.update(id, func(d *domain.Document) {
		now := s.timestamp()
		d.DeletedAt = &now
	})
}

func (s *Store) RestoreDocument(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.documents[id]
	if !ok {
		return notFound("document", id)
	}
	if !d.IsDeleted() {
		return nil
	}
	if s.titleTaken(d.OwnerID, d.Title, d.ID) {
		return &domain.Error{
			Kind:    domain.KindDuplicateTitle,
			Message: fmt.Sprintf("document with title %q already exists for this owner", d.Title),
		}
	}
	d.DeletedAt = nil
	d.UpdatedAt = s.timestamp()
	return nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter domain.DocumentFilter) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.Document, 0)
	for _, d := range s.documents {
		if d.IsDeleted() || d.OwnerID != ownerID {
			continue
		}
		if filter.TypeCode != "" && d.DocumentTypeCode != filter.TypeCode {
			continue
		}
		if filter.SinceID != nil && bytes.Compare(d.ID[:], filter.SinceID[:]) < 0 {
			continue
		}
		result = append(result, *copyDocument(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].ID[:], result[j].ID[:]) > 0
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) expired(before time.Time) []*domain.Document {
	var result []*domain.Document
	for _, d := range s.documents {
		if !d.IsDeleted() && d.ExpirationDate != nil && d.ExpirationDate.Before(before) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].ID[:], result[j].ID[:]) < 0
	})
	return result
}

func (s *Store) ListExpired(ctx context.Context, before time.Time) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.expired(before)
	result := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		result = append(result, *copyDocument(d))
	}
	return result, nil
}

func (s *Store) SoftDeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	docs := s.expired(before)
	for _, d := range docs {
		deletedAt := now
		d.DeletedAt = &deletedAt
		d.UpdatedAt = now
	}
	return int64(len(docs)), nil
}
