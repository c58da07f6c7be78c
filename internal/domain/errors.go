package domain

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует ошибки ядра документов
type ErrorKind string

const (
	KindValidation           ErrorKind = "validation_error"
	KindDuplicateTitle       ErrorKind = "duplicate_title"
	KindDuplicateContent     ErrorKind = "duplicate_content"
	KindOwnerNotFound        ErrorKind = "owner_not_found"
	KindUnknownTypeCode      ErrorKind = "unknown_type_code"
	KindStorageUnavailable   ErrorKind = "storage_unavailable"
	KindEntropyUnavailable   ErrorKind = "entropy_unavailable"
	KindConcurrencyViolation ErrorKind = "concurrency_violation"
	KindNotFound             ErrorKind = "not_found"
)

// Коды ошибок валидации
const (
	CodeInvalidExtension       = "invalid_extension"
	CodeFileTooLarge           = "file_too_large"
	CodeMaxCountExceeded       = "max_count_exceeded"
	CodeEmptyTitle             = "empty_title"
	CodeEmptyFile              = "empty_file"
	CodeInvalidAccessLevel     = "invalid_access_level"
	CodeInvalidStatus          = "invalid_validation_status"
	CodeInvalidConfidenceScore = "invalid_confidence_score"
	CodeVersionMismatch        = "version_mismatch"
	CodeInvalidOwnerField      = "invalid_owner_field"
)

// Error структурированная ошибка с видом и кодом
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает по виду ошибки, а если у цели задан код - то и по коду
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrDuplicateTitle       = &Error{Kind: KindDuplicateTitle}
	ErrDuplicateContent     = &Error{Kind: KindDuplicateContent}
	ErrOwnerNotFound        = &Error{Kind: KindOwnerNotFound}
	ErrUnknownTypeCode      = &Error{Kind: KindUnknownTypeCode}
	ErrStorageUnavailable   = &Error{Kind: KindStorageUnavailable}
	ErrEntropyUnavailable   = &Error{Kind: KindEntropyUnavailable}
	ErrConcurrencyViolation = &Error{Kind: KindConcurrencyViolation}
	ErrNotFound             = &Error{Kind: KindNotFound}
)

// ErrIdentifierCollision сигнализирует о конфликте первичного ключа; вызывающий
// генерирует новый идентификатор и повторяет вставку
var ErrIdentifierCollision = errors.New("identifier collision")

func NewValidationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf возвращает вид ошибки или пустую строку для посторонних ошибок
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf возвращает код ошибки валидации
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
