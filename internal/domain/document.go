package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

type ValidationStatus string
type AccessLevel string

const (
	ValidationPending        ValidationStatus = "pending"
	ValidationValidated      ValidationStatus = "validated"
	ValidationRejected       ValidationStatus = "rejected"
	ValidationRequiresUpdate ValidationStatus = "requires_update"

	AccessPublic       AccessLevel = "public"
	AccessInternal     AccessLevel = "internal"
	AccessRestricted   AccessLevel = "restricted"
	AccessConfidential AccessLevel = "confidential"
)

func (s ValidationStatus) Valid() bool {
	switch s {
	case ValidationPending, ValidationValidated, ValidationRejected, ValidationRequiresUpdate:
		return true
	}
	return false
}

func (l AccessLevel) Valid() bool {
	switch l {
	case AccessPublic, AccessInternal, AccessRestricted, AccessConfidential:
		return true
	}
	return false
}

// Lifecycle хранит служебные временные метки записи (создание, изменение, мягкое удаление)
type Lifecycle struct {
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

func (l Lifecycle) IsDeleted() bool {
	return l.DeletedAt != nil
}

// Document представляет документ владельца
type Document struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	OwnerKind        string           `json:"owner_kind" db:"owner_kind"`
	OwnerID          uuid.UUID        `json:"owner_id" db:"owner_id"`
	DocumentTypeCode string           `json:"document_type" db:"document_type_code"`
	Title            string           `json:"title" db:"title"`
	Description      *string          `json:"description,omitempty" db:"description"`
	ValidationStatus ValidationStatus `json:"validation_status" db:"validation_status"`
	ValidatedBy      *string          `json:"validated_by,omitempty" db:"validated_by"`
	ValidationDate   *time.Time       `json:"validation_date,omitempty" db:"validation_date"`
	ValidationNotes  *string          `json:"validation_notes,omitempty" db:"validation_notes"`
	ValidationErrors pq.StringArray   `json:"validation_errors" db:"validation_errors"`
	AIExtractedData  types.JSONText   `json:"ai_extracted_data" db:"ai_extracted_data"`
	AIConfidence     *float64         `json:"ai_confidence_score,omitempty" db:"ai_confidence_score"`
	AccessLevel      AccessLevel      `json:"access_level" db:"access_level"`
	IsConfidential   bool             `json:"is_confidential" db:"is_confidential"`
	ExpirationDate   *time.Time       `json:"expiration_date,omitempty" db:"expiration_date"`
	Lifecycle
}

// Owner возвращает ссылку на владельца документа
func (d *Document) Owner() OwnerRef {
	return OwnerRef{Kind: d.OwnerKind, ID: d.OwnerID}
}

// IsExpired проверяет, истек ли срок действия документа на текущую дату
func (d *Document) IsExpired() bool {
	return d.IsExpiredAt(time.Now())
}

// IsExpiredAt сравнивает дату истечения с календарной датой now (без учета времени)
func (d *Document) IsExpiredAt(now time.Time) bool {
	if d.ExpirationDate == nil {
		return false
	}
	exp := d.ExpirationDate.UTC()
	today := now.UTC()
	expDay := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, time.UTC)
	todayDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return expDay.Before(todayDay)
}

// NewDocumentParams параметры создания документа вместе с первым файлом
type NewDocumentParams struct {
	Owner          OwnerRef
	DocumentType   string
	Title          string
	Description    *string
	AccessLevel    AccessLevel
	IsConfidential bool
	ExpirationDate *time.Time
	File           *FileUpload
}

// ValidationTransition новое состояние проверки документа
type ValidationTransition struct {
	Status      ValidationStatus
	ValidatedBy *string
	Notes       *string
	Errors      []string
}

// AccessUpdate изменение уровня доступа
type AccessUpdate struct {
	AccessLevel    AccessLevel
	IsConfidential bool
}

// AIResult результат внешней AI-обработки, хранится как есть
type AIResult struct {
	ExtractedData types.JSONText
	Confidence    *float64
}

// DocumentFilter выборка документов владельца.
// Идентификаторы упорядочены по времени, поэтому SinceID работает как фильтр по дате создания.
type DocumentFilter struct {
	TypeCode string
	SinceID  *uuid.UUID
	Limit    int
}
