package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docmanager/internal/catalog"
	"docmanager/internal/domain"
	"docmanager/internal/idgen"
	"docmanager/internal/metrics"
)

// VersionLedger ведет журнал версий документа: нумерация 1..N без пропусков
// и ровно одна текущая версия
type VersionLedger struct {
	docs     DocumentStore
	versions VersionStore
	catalog  Catalog
	blobs    BlobStore
	ids      idgen.Source
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewVersionLedger(
	docs DocumentStore,
	versions VersionStore,
	catalog Catalog,
	blobs BlobStore,
	ids idgen.Source,
	logger *zap.Logger,
	m *metrics.Metrics,
) *VersionLedger {
	return &VersionLedger{
		docs:     docs,
		versions: versions,
		catalog:  catalog,
		blobs:    blobs,
		ids:      ids,
		logger:   logger.With(zap.String("service", "version_ledger")),
		metrics:  m,
	}
}

// prepareVersion проверяет файл по типу документа и собирает запись версии без номера
func (l *VersionLedger) prepareVersion(doc *domain.Document, docType *domain.DocumentType, file *domain.FileUpload, documentDate *time.Time) (*domain.DocumentVersion, error) {
	if file == nil {
		return nil, domain.NewValidationError(domain.CodeEmptyFile, "file is required")
	}
	filename := cleanFilename(file.Filename)
	if err := catalog.ValidateFile(docType, filename, int64(len(file.Data))); err != nil {
		return nil, err
	}

	id, err := l.ids.New()
	if err != nil {
		return nil, err
	}

	return &domain.DocumentVersion{
		ID:               id,
		DocumentID:       doc.ID,
		FileKey:          blobKey(doc.OwnerID, id, filename),
		SizeBytes:        int64(len(file.Data)),
		FileHash:         hashContent(file.Data),
		MIMEType:         detectMIMEType(filename, file.MIMEType),
		OriginalFilename: filename,
		DocumentDate:     documentDate,
	}, nil
}

func (l *VersionLedger) upload(ctx context.Context, v *domain.DocumentVersion, data []byte) error {
	if err := l.blobs.Store(ctx, v.FileKey, data, v.MIMEType); err != nil {
		if domain.KindOf(err) == domain.KindStorageUnavailable {
			return err
		}
		return domain.NewError(domain.KindStorageUnavailable, "failed to store file content", err)
	}
	return nil
}

// discard удаляет загруженный объект, который не попал в журнал
func (l *VersionLedger) discard(ctx context.Context, key string) {
	if err := l.blobs.Delete(ctx, key); err != nil {
		l.logger.Warn("failed to delete orphaned file content", zap.String("file_key", key), zap.Error(err))
	}
}

// AddVersion добавляет новую версию документа.
// Совпадение содержимого с существующей версией в строгом режиме дает DuplicateContent,
// иначе возвращается существующая версия и reused=true.
func (l *VersionLedger) AddVersion(ctx context.Context, documentID uuid.UUID, params domain.AddVersionParams) (version *domain.DocumentVersion, reused bool, err error) {
	defer func(start time.Time) { l.metrics.Observe("add_version", start, err) }(time.Now())

	doc, err := l.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, false, err
	}
	docType, err := l.catalog.GetType(ctx, doc.DocumentTypeCode)
	if err != nil {
		return nil, false, err
	}

	if params.File == nil {
		return nil, false, domain.NewValidationError(domain.CodeEmptyFile, "file is required")
	}
	if err := catalog.ValidateFile(docType, cleanFilename(params.File.Filename), int64(len(params.File.Data))); err != nil {
		return nil, false, err
	}

	existing, err := l.findExisting(ctx, doc.ID, hashContent(params.File.Data))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if params.Strict {
			l.metrics.IncDuplicatesRejected()
			return nil, false, &domain.Error{
				Kind:    domain.KindDuplicateContent,
				Message: "file content already exists as version " + strconv.Itoa(existing.VersionNumber),
			}
		}
		return l.reuse(ctx, existing, params.SetCurrent)
	}

	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		v, err := l.prepareVersion(doc, docType, params.File, params.DocumentDate)
		if err != nil {
			return nil, false, err
		}
		if err := l.upload(ctx, v, params.File.Data); err != nil {
			return nil, false, err
		}

		stored, wasReused, err := l.versions.AppendVersion(ctx, v, domain.AppendOptions{
			SetCurrent: params.SetCurrent,
			Strict:     params.Strict,
		})
		if err != nil || wasReused {
			l.discard(ctx, v.FileKey)
		}
		if errors.Is(err, domain.ErrIdentifierCollision) {
			continue
		}
		if errors.Is(err, domain.ErrDuplicateContent) {
			l.metrics.IncDuplicatesRejected()
		}
		if err != nil {
			return nil, false, err
		}

		if wasReused {
			l.metrics.IncVersionsReused()
			return stored, true, nil
		}

		l.metrics.IncVersionsAdded()
		l.logger.Info("document version added",
			zap.String("document_id", doc.ID.String()),
			zap.String("version_id", stored.ID.String()),
			zap.Int("version_number", stored.VersionNumber),
			zap.Bool("is_current", stored.IsCurrent))
		return stored, false, nil
	}

	return nil, false, &domain.Error{
		Kind:    domain.KindConcurrencyViolation,
		Message: "failed to allocate a unique version identifier",
		Err:     domain.ErrIdentifierCollision,
	}
}

func (l *VersionLedger) findExisting(ctx context.Context, documentID uuid.UUID, hash string) (*domain.DocumentVersion, error) {
	existing, err := l.versions.FindByHash(ctx, documentID, hash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return existing, err
}

func (l *VersionLedger) reuse(ctx context.Context, existing *domain.DocumentVersion, setCurrent bool) (*domain.DocumentVersion, bool, error) {
	l.metrics.IncVersionsReused()
	if !setCurrent || existing.IsCurrent {
		return existing, true, nil
	}
	current, err := l.versions.SetCurrentVersion(ctx, existing.DocumentID, existing.ID)
	if err != nil {
		return nil, false, err
	}
	return current, true, nil
}

// requireLive возвращает NotFound для отсутствующего или удаленного документа
func (l *VersionLedger) requireLive(ctx context.Context, documentID uuid.UUID) error {
	_, err := l.docs.GetDocument(ctx, documentID)
	return err
}

// GetCurrent возвращает текущую версию документа
func (l *VersionLedger) GetCurrent(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	if err := l.requireLive(ctx, documentID); err != nil {
		return nil, err
	}
	return l.versions.GetCurrentVersion(ctx, documentID)
}

// GetVersion возвращает версию по номеру
func (l *VersionLedger) GetVersion(ctx context.Context, documentID uuid.UUID, number int) (*domain.DocumentVersion, error) {
	if number < 1 {
		return nil, &domain.Error{Kind: domain.KindNotFound, Message: "version numbers start at 1"}
	}
	if err := l.requireLive(ctx, documentID); err != nil {
		return nil, err
	}
	return l.versions.GetVersion(ctx, documentID, number)
}

// GetLatest возвращает версию с наибольшим номером
func (l *VersionLedger) GetLatest(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	n, err := l.LatestNumber(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &domain.Error{Kind: domain.KindNotFound, Message: "document has no versions"}
	}
	return l.versions.GetVersion(ctx, documentID, n)
}

func (l *VersionLedger) ListVersions(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentVersion, error) {
	if err := l.requireLive(ctx, documentID); err != nil {
		return nil, err
	}
	return l.versions.ListVersions(ctx, documentID)
}

func (l *VersionLedger) Count(ctx context.Context, documentID uuid.UUID) (int, error) {
	if err := l.requireLive(ctx, documentID); err != nil {
		return 0, err
	}
	return l.versions.CountVersions(ctx, documentID)
}

func (l *VersionLedger) LatestNumber(ctx context.Context, documentID uuid.UUID) (int, error) {
	if err := l.requireLive(ctx, documentID); err != nil {
		return 0, err
	}
	return l.versions.LatestVersionNumber(ctx, documentID)
}

// SetCurrentVersion делает текущей версию с указанным номером (откат)
func (l *VersionLedger) SetCurrentVersion(ctx context.Context, documentID uuid.UUID, number int) (v *domain.DocumentVersion, err error) {
	defer func(start time.Time) { l.metrics.Observe("set_current_version", start, err) }(time.Now())

	target, err := l.GetVersion(ctx, documentID, number)
	if err != nil {
		return nil, err
	}
	if target.IsCurrent {
		return target, nil
	}

	v, err = l.versions.SetCurrentVersion(ctx, documentID, target.ID)
	if err != nil {
		return nil, err
	}
	l.logger.Info("current version changed",
		zap.String("document_id", documentID.String()),
		zap.Int("version_number", v.VersionNumber))
	return v, nil
}

// DeleteLatestVersion мягко удаляет последнюю версию; текущей становится предыдущая
func (l *VersionLedger) DeleteLatestVersion(ctx context.Context, documentID uuid.UUID) (v *domain.DocumentVersion, err error) {
	defer func(start time.Time) { l.metrics.Observe("delete_latest_version", start, err) }(time.Now())

	v, err = l.versions.SoftDeleteLatestVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	l.logger.Info("latest version deleted",
		zap.String("document_id", documentID.String()),
		zap.Int("version_number", v.VersionNumber))
	return v, nil
}

// ReadContent читает содержимое версии из хранилища файлов
func (l *VersionLedger) ReadContent(ctx context.Context, v *domain.DocumentVersion) ([]byte, error) {
	data, err := l.blobs.Read(ctx, v.FileKey)
	if err != nil {
		if domain.KindOf(err) != "" {
			return nil, err
		}
		return nil, domain.NewError(domain.KindStorageUnavailable, "failed to read file content", err)
	}
	return data, nil
}
