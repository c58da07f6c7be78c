// domain/document_version.go
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DocumentVersion struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	DocumentID       uuid.UUID  `json:"document_id" db:"document_id"`
	VersionNumber    int        `json:"version_number" db:"version_number"`
	IsCurrent        bool       `json:"is_current" db:"is_current"`
	FileKey          string     `json:"file_key" db:"file_key"`
	SizeBytes        int64      `json:"file_size_bytes" db:"file_size_bytes"`
	FileHash         string     `json:"file_hash" db:"file_hash"`
	MIMEType         string     `json:"mime_type" db:"mime_type"`
	OriginalFilename string     `json:"original_filename" db:"original_filename"`
	DocumentDate     *time.Time `json:"document_date,omitempty" db:"document_date"`
	ReplacedBy       *uuid.UUID `json:"replaced_by,omitempty" db:"replaced_by"`
	Lifecycle
}

// SizeDisplay возвращает размер файла в человекочитаемом виде
func (v *DocumentVersion) SizeDisplay() string {
	size := float64(v.SizeBytes)
	switch {
	case v.SizeBytes < 1024:
		return fmt.Sprintf("%d B", v.SizeBytes)
	case v.SizeBytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", size/1024)
	case v.SizeBytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", size/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", size/(1024*1024*1024))
	}
}

// FileUpload содержимое загружаемого файла
type FileUpload struct {
	Filename string
	Data     []byte
	// MIMEType может быть пустым, тогда тип определяется по расширению
	MIMEType string
}

// AddVersionParams параметры добавления версии
type AddVersionParams struct {
	File         *FileUpload
	DocumentDate *time.Time
	SetCurrent   bool
	Strict       bool
}

// AppendOptions управляют поведением хранилища при вставке версии
type AppendOptions struct {
	SetCurrent bool
	Strict     bool
}
