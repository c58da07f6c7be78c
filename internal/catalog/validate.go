package catalog

import (
	"fmt"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"

	"docmanager/internal/domain"
)

// AllowedExtensions множество допустимых расширений типа
func AllowedExtensions(t *domain.DocumentType) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, ext := range t.FileExtensions {
		set.Add(NormalizeExtension(ext))
	}
	return set
}

// ValidateFile проверяет расширение и размер файла по правилам типа документа.
// Расширение проверяется первым.
func ValidateFile(t *domain.DocumentType, filename string, size int64) error {
	if size <= 0 {
		return domain.NewValidationError(domain.CodeEmptyFile, "file is empty")
	}

	allowed := AllowedExtensions(t)
	ext := NormalizeExtension(filepath.Ext(filename))
	if allowed.Cardinality() > 0 && !allowed.Contains(ext) {
		return domain.NewValidationError(
			domain.CodeInvalidExtension,
			fmt.Sprintf("file extension %q is not allowed for document type %s (allowed: %v)",
				ext, t.Code, allowed.ToSlice()),
		)
	}

	if limit := t.MaxFileSizeBytes(); limit > 0 && size > limit {
		return domain.NewValidationError(
			domain.CodeFileTooLarge,
			fmt.Sprintf("file size %d bytes exceeds maximum of %d MB for document type %s",
				size, t.MaxFileSizeMB, t.Code),
		)
	}
	return nil
}
