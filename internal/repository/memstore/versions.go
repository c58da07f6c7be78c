package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"docmanager/internal/domain"
)

// live возвращает неудаленные версии документа по возрастанию номера
func (s *Store) live(documentID uuid.UUID) []*domain.DocumentVersion {
	var result []*domain.DocumentVersion
	for _, v := range s.versions[documentID] {
		if !v.IsDeleted() {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].VersionNumber < result[j].VersionNumber })
	return result
}

func (s *Store) current(documentID uuid.UUID) *domain.DocumentVersion {
	for _, v := range s.live(documentID) {
		if v.IsCurrent {
			return v
		}
	}
	return nil
}

// flip переносит признак текущей версии на target
func (s *Store) flip(documentID uuid.UUID, target *domain.DocumentVersion) {
	now := s.timestamp()
	if prev := s.current(documentID); prev != nil && prev != target {
		prev.IsCurrent = false
		id := target.ID
		prev.ReplacedBy = &id
		prev.UpdatedAt = now
	}
	target.IsCurrent = true
	target.ReplacedBy = nil
	target.UpdatedAt = now
}

func (s *Store) AppendVersion(ctx context.Context, v *domain.DocumentVersion, opts domain.AppendOptions) (*domain.DocumentVersion, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveDocument(v.DocumentID); err != nil {
		return nil, false, err
	}
	if _, exists := s.versionIDs[v.ID]; exists {
		return nil, false, domain.ErrIdentifierCollision
	}

	live := s.live(v.DocumentID)
	for _, existing := range live {
		if existing.FileHash != v.FileHash {
			continue
		}
		if opts.Strict {
			return nil, false, &domain.Error{
				Kind:    domain.KindDuplicateContent,
				Message: fmt.Sprintf("file content already exists as version %d", existing.VersionNumber),
			}
		}
		if opts.SetCurrent && !existing.IsCurrent {
			s.flip(v.DocumentID, existing)
		}
		return copyVersion(existing), true, nil
	}

	next := 1
	if len(live) > 0 {
		next = live[len(live)-1].VersionNumber + 1
	}

	now := s.timestamp()
	stored := copyVersion(v)
	stored.VersionNumber = next
	stored.IsCurrent = false
	stored.ReplacedBy = nil
	stored.CreatedAt, stored.UpdatedAt, stored.DeletedAt = now, now, nil

	s.versions[v.DocumentID] = append(s.versions[v.DocumentID], stored)
	s.versionIDs[stored.ID] = struct{}{}

	if opts.SetCurrent || s.current(v.DocumentID) == nil {
		s.flip(v.DocumentID, stored)
	}
	return copyVersion(stored), false, nil
}

func (s *Store) FindByHash(ctx context.Context, documentID uuid.UUID, hash string) (*domain.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.live(documentID) {
		if v.FileHash == hash {
			return copyVersion(v), nil
		}
	}
	return nil, notFound("version with hash", hash)
}

func (s *Store) GetCurrentVersion(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveDocument(documentID); err != nil {
		return nil, err
	}
	if v := s.current(documentID); v != nil {
		return copyVersion(v), nil
	}
	return nil, notFound("current version of document", documentID)
}

func (s *Store) GetVersion(ctx context.Context, documentID uuid.UUID, number int) (*domain.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveDocument(documentID); err != nil {
		return nil, err
	}
	for _, v := range s.live(documentID) {
		if v.VersionNumber == number {
			return copyVersion(v), nil
		}
	}
	return nil, notFound("version", number)
}

// ListVersions возвращает версии от новых к старым
func (s *Store) ListVersions(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.live(documentID)
	result := make([]domain.DocumentVersion, 0, len(live))
	for i := len(live) - 1; i >= 0; i-- {
		result = append(result, *copyVersion(live[i]))
	}
	return result, nil
}

func (s *Store) CountVersions(ctx context.Context, documentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveDocument(documentID); err != nil {
		return 0, err
	}
	return len(s.live(documentID)), nil
}

func (s *Store) LatestVersionNumber(ctx context.Context, documentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveDocument(documentID); err != nil {
		return 0, err
	}
	live := s.live(documentID)
	if len(live) == 0 {
		return 0, nil
	}
	return live[len(live)-1].VersionNumber, nil
}

func (s *Store) SetCurrentVersion(ctx context.Context, documentID, versionID uuid.UUID) (*domain.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveDocument(documentID); err != nil {
		return nil, err
	}
	for _, v := range s.live(documentID) {
		if v.ID == versionID {
			if !v.IsCurrent {
				s.flip(documentID, v)
			}
			return copyVersion(v), nil
		}
	}
	return nil, notFound("version", versionID)
}

func (s *Store) SoftDeleteLatestVersion(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveDocument(documentID); err != nil {
		return nil, err
	}
	live := s.live(documentID)
	if len(live) == 0 {
		return nil, notFound("versions of document", documentID)
	}

	latest := live[len(live)-1]
	now := s.timestamp()
	wasCurrent := latest.IsCurrent
	latest.IsCurrent = false
	latest.DeletedAt = &now
	latest.UpdatedAt = now

	if wasCurrent && len(live) > 1 {
		s.flip(documentID, live[len(live)-2])
	}
	return copyVersion(latest), nil
}
