package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"docmanager/internal/domain"
)

// Коды ошибок PostgreSQL
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Ограничения, на которые опираются инварианты
const (
	constraintOwnerTitle     = "documents_owner_title_uniq"
	constraintVersionHash    = "document_versions_hash_uniq"
	constraintVersionNumber  = "document_versions_number_uniq"
	constraintVersionCurrent = "document_versions_current_uniq"
	constraintDocumentsPKey  = "documents_pkey"
	constraintVersionsPKey   = "document_versions_pkey"
)

// translate переводит ошибки драйвера в доменные ошибки
func translate(err error, action string) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	switch string(pqErr.Code) {
	case codeUniqueViolation:
		switch pqErr.Constraint {
		case constraintOwnerTitle:
			return &domain.Error{Kind: domain.KindDuplicateTitle, Message: "document with this title already exists for the owner", Err: err}
		case constraintVersionHash:
			return &domain.Error{Kind: domain.KindDuplicateContent, Message: "file content already exists for the document", Err: err}
		case constraintDocumentsPKey, constraintVersionsPKey:
			return fmt.Errorf("%w: %s", domain.ErrIdentifierCollision, pqErr.Constraint)
		case constraintVersionNumber, constraintVersionCurrent:
			return &domain.Error{Kind: domain.KindConcurrencyViolation, Message: "concurrent version update", Err: err}
		}
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
		return &domain.Error{Kind: domain.KindConcurrencyViolation, Message: "transaction aborted, retry the operation", Err: err}
	}

	return fmt.Errorf("failed to %s: %w", action, err)
}
