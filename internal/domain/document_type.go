package domain

import (
	"time"

	"github.com/lib/pq"
)

// DocumentType запись каталога типов документов
type DocumentType struct {
	Code               string         `json:"code" db:"code" yaml:"code"`
	Name               string         `json:"name" db:"name" yaml:"name"`
	Description        string         `json:"description" db:"description" yaml:"description"`
	FileExtensions     pq.StringArray `json:"file_extensions" db:"file_extensions" yaml:"file_extensions"`
	MaxFileSizeMB      int            `json:"max_file_size_mb" db:"max_file_size_mb" yaml:"max_file_size_mb"`
	MaxCountPerOwner   int            `json:"max_count_per_owner" db:"max_count_per_owner" yaml:"max_count_per_owner"`
	RequiresValidation bool           `json:"requires_validation" db:"requires_validation" yaml:"requires_validation"`
	IsFinancial        bool           `json:"is_financial" db:"is_financial" yaml:"is_financial"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at" yaml:"-"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at" yaml:"-"`
}

// MaxFileSizeBytes лимит размера файла в байтах
func (t *DocumentType) MaxFileSizeBytes() int64 {
	return int64(t.MaxFileSizeMB) * 1024 * 1024
}
