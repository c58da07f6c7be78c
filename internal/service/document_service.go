package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"docmanager/internal/domain"
	"docmanager/internal/idgen"
	"docmanager/internal/metrics"
)

const defaultRecentLimit = 10

// DocumentService управляет документами владельцев
type DocumentService struct {
	docs    DocumentStore
	owners  *OwnerService
	catalog Catalog
	ledger  *VersionLedger
	ids     idgen.Source
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewDocumentService(
	docs DocumentStore,
	owners *OwnerService,
	catalog Catalog,
	ledger *VersionLedger,
	ids idgen.Source,
	logger *zap.Logger,
	m *metrics.Metrics,
) *DocumentService {
	return &DocumentService{
		docs:    docs,
		owners:  owners,
		catalog: catalog,
		ledger:  ledger,
		ids:     ids,
		logger:  logger.With(zap.String("service", "document_service")),
		metrics: m,
		now:     time.Now,
	}
}

func (s *DocumentService) resolveType(ctx context.Context, code string) (*domain.DocumentType, error) {
	if code == "" {
		return s.catalog.GetDefaultType(ctx)
	}
	return s.catalog.GetType(ctx, code)
}

// CreateWithFile создает документ и, если передан файл, его первую версию.
// Документ и версия записываются одной транзакцией; если запись не удалась,
// загруженный файл удаляется.
func (s *DocumentService) CreateWithFile(ctx context.Context, params domain.NewDocumentParams) (doc *domain.Document, first *domain.DocumentVersion, err error) {
	defer func(start time.Time) { s.metrics.Observe("create_document", start, err) }(time.Now())

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, nil, domain.NewValidationError(domain.CodeEmptyTitle, "title is required")
	}
	access := params.AccessLevel
	if access == "" {
		access = domain.AccessInternal
	}
	if !access.Valid() {
		return nil, nil, domain.NewValidationError(domain.CodeInvalidAccessLevel, "invalid access level: "+string(access))
	}

	docType, err := s.resolveType(ctx, params.DocumentType)
	if err != nil {
		return nil, nil, err
	}

	owner, err := s.owners.ResolveRef(ctx, params.Owner)
	if err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		id, err := s.ids.New()
		if err != nil {
			return nil, nil, err
		}

		doc = &domain.Document{
			ID:               id,
			OwnerKind:        owner.Kind,
			OwnerID:          owner.OwnerIdentifier(),
			DocumentTypeCode: docType.Code,
			Title:            title,
			Description:      params.Description,
			ValidationStatus: domain.ValidationPending,
			ValidationErrors: pq.StringArray{},
			AccessLevel:      access,
			IsConfidential:   params.IsConfidential,
			ExpirationDate:   params.ExpirationDate,
		}

		first = nil
		if params.File != nil {
			first, err = s.ledger.prepareVersion(doc, docType, params.File, nil)
			if err != nil {
				return nil, nil, err
			}
			first.VersionNumber = 1
			first.IsCurrent = true

			if err := s.ledger.upload(ctx, first, params.File.Data); err != nil {
				return nil, nil, err
			}
		}

		err = s.docs.CreateDocument(ctx, doc, first, docType.MaxCountPerOwner)
		if err != nil && first != nil {
			s.ledger.discard(ctx, first.FileKey)
		}
		if errors.Is(err, domain.ErrIdentifierCollision) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		s.metrics.IncDocumentsCreated()
		fields := []zap.Field{
			zap.String("document_id", doc.ID.String()),
			zap.String("owner", owner.Ref().String()),
			zap.String("document_type", docType.Code),
		}
		if first != nil {
			s.metrics.IncVersionsAdded()
			fields = append(fields, zap.String("version_id", first.ID.String()))
		}
		s.logger.Info("document created", fields...)
		return doc, first, nil
	}

	return nil, nil, &domain.Error{
		Kind:    domain.KindConcurrencyViolation,
		Message: "failed to allocate a unique document identifier",
		Err:     domain.ErrIdentifierCollision,
	}
}

func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	return s.docs.GetDocument(ctx, id)
}

// TransitionValidation записывает новое состояние проверки; переходы между статусами не ограничиваются
func (s *DocumentService) TransitionValidation(ctx context.Context, id uuid.UUID, t domain.ValidationTransition) (*domain.Document, error) {
	if !t.Status.Valid() {
		return nil, domain.NewValidationError(domain.CodeInvalidStatus, "invalid validation status: "+string(t.Status))
	}

	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	doc.ValidationStatus = t.Status
	doc.ValidatedBy = t.ValidatedBy
	doc.ValidationNotes = t.Notes
	doc.ValidationDate = &now
	doc.ValidationErrors = pq.StringArray(append([]string{}, t.Errors...))

	if err := s.docs.UpdateValidation(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document validation transitioned",
		zap.String("document_id", doc.ID.String()),
		zap.String("status", string(t.Status)))
	return doc, nil
}

func (s *DocumentService) UpdateAccess(ctx context.Context, id uuid.UUID, u domain.AccessUpdate) (*domain.Document, error) {
	if !u.AccessLevel.Valid() {
		return nil, domain.NewValidationError(domain.CodeInvalidAccessLevel, "invalid access level: "+string(u.AccessLevel))
	}

	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.AccessLevel = u.AccessLevel
	doc.IsConfidential = u.IsConfidential

	if err := s.docs.UpdateAccess(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// StoreAIResult сохраняет результат внешней обработки без интерпретации
func (s *DocumentService) StoreAIResult(ctx context.Context, id uuid.UUID, r domain.AIResult) (*domain.Document, error) {
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 100) {
		return nil, domain.NewValidationError(domain.CodeInvalidConfidenceScore, "confidence score must be between 0 and 100")
	}

	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.AIExtractedData = r.ExtractedData
	doc.AIConfidence = r.Confidence

	if err := s.docs.UpdateAIResult(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// SoftDelete помечает документ удаленным; версии сохраняются
func (s *DocumentService) SoftDelete(ctx context.Context, id uuid.UUID) error {
	if err := s.docs.SoftDeleteDocument(ctx, id); err != nil {
		return err
	}
	s.logger.Info("document soft-deleted", zap.String("document_id", id.String()))
	return nil
}

// Restore снимает пометку удаления; заголовок может быть уже занят другим документом
func (s *DocumentService) Restore(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	if err := s.docs.RestoreDocument(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("document restored", zap.String("document_id", id.String()))
	return s.docs.GetDocument(ctx, id)
}

// Recent возвращает последние limit документов владельца, новые первыми
func (s *DocumentService) Recent(ctx context.Context, owner domain.OwnerRef, limit int) ([]domain.Document, error) {
	if _, err := s.owners.ResolveRef(ctx, owner); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.docs.ListByOwner(ctx, owner.ID, domain.DocumentFilter{Limit: limit})
}

// Since возвращает документы владельца, созданные за последние daysAgo дней
func (s *DocumentService) Since(ctx context.Context, owner domain.OwnerRef, daysAgo int) ([]domain.Document, error) {
	if _, err := s.owners.ResolveRef(ctx, owner); err != nil {
		return nil, err
	}
	if daysAgo < 0 {
		daysAgo = 0
	}
	floor := idgen.Floor(s.now().AddDate(0, 0, -daysAgo))
	return s.docs.ListByOwner(ctx, owner.ID, domain.DocumentFilter{SinceID: &floor})
}

// ListByOwner возвращает документы владельца, при необходимости одного типа
func (s *DocumentService) ListByOwner(ctx context.Context, owner domain.OwnerRef, typeCode string) ([]domain.Document, error) {
	if _, err := s.owners.ResolveRef(ctx, owner); err != nil {
		return nil, err
	}
	if typeCode != "" {
		if _, err := s.catalog.GetType(ctx, typeCode); err != nil {
			return nil, err
		}
	}
	return s.docs.ListByOwner(ctx, owner.ID, domain.DocumentFilter{TypeCode: typeCode})
}
