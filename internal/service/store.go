package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"docmanager/internal/domain"
)

// DocumentStore хранилище документов.
// CreateDocument вставляет документ и первую версию в одной транзакции.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *domain.Document, first *domain.DocumentVersion, maxPerOwner int) error
	GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	UpdateValidation(ctx context.Context, doc *domain.Document) error
	UpdateAccess(ctx context.Context, doc *domain.Document) error
	UpdateAIResult(ctx context.Context, doc *domain.Document) error
	SoftDeleteDocument(ctx context.Context, id uuid.UUID) error
	RestoreDocument(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter domain.DocumentFilter) ([]domain.Document, error)
	ListExpired(ctx context.Context, before time.Time) ([]domain.Document, error)
	SoftDeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// VersionStore журнал версий. AppendVersion, SetCurrentVersion и
// SoftDeleteLatestVersion сериализуются по документу.
type VersionStore interface {
	AppendVersion(ctx context.Context, v *domain.DocumentVersion, opts domain.AppendOptions) (*domain.DocumentVersion, bool, error)
	FindByHash(ctx context.Context, documentID uuid.UUID, hash string) (*domain.DocumentVersion, error)
	GetCurrentVersion(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error)
	GetVersion(ctx context.Context, documentID uuid.UUID, number int) (*domain.DocumentVersion, error)
	ListVersions(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentVersion, error)
	CountVersions(ctx context.Context, documentID uuid.UUID) (int, error)
	LatestVersionNumber(ctx context.Context, documentID uuid.UUID) (int, error)
	SetCurrentVersion(ctx context.Context, documentID, versionID uuid.UUID) (*domain.DocumentVersion, error)
	SoftDeleteLatestVersion(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error)
}

// OwnerStore доступ к таблицам владельцев.
// AssignIdentifier записывает идентификатор, только если он еще пуст, и сообщает, была ли запись.
type OwnerStore interface {
	FindByOwnerID(ctx context.Context, kind domain.OwnerKind, id uuid.UUID) (*domain.Owner, error)
	FindByPK(ctx context.Context, kind domain.OwnerKind, pk int64) (*domain.Owner, error)
	FindByKey(ctx context.Context, kind domain.OwnerKind, key string) (*domain.Owner, error)
	AssignIdentifier(ctx context.Context, kind domain.OwnerKind, pk int64, id uuid.UUID) (bool, error)
	InsertWithIdentifier(ctx context.Context, kind domain.OwnerKind, key string, id uuid.UUID) (*domain.Owner, bool, error)
	BulkInsert(ctx context.Context, kind domain.OwnerKind, keys []string, ids []uuid.UUID) ([]domain.Owner, error)
	UpdateFields(ctx context.Context, kind domain.OwnerKind, pk int64, fields map[string]interface{}) error
	ListMissingIdentifiers(ctx context.Context, kind domain.OwnerKind, limit int) ([]domain.Owner, error)
	CountMissingIdentifiers(ctx context.Context, kind domain.OwnerKind) (int, error)
}

// Catalog реестр типов документов
type Catalog interface {
	GetType(ctx context.Context, code string) (*domain.DocumentType, error)
	GetDefaultType(ctx context.Context) (*domain.DocumentType, error)
}

// BlobStore хранилище содержимого файлов
type BlobStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
