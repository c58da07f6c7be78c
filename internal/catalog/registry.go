// Package catalog содержит реестр типов документов и правила проверки файлов.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"docmanager/internal/domain"
)

const DefaultTypeCode = "generic"

// Registry реестр типов документов в памяти
type Registry struct {
	mu          sync.RWMutex
	types       map[string]domain.DocumentType
	defaultCode string
}

type catalogFile struct {
	DocumentTypes []domain.DocumentType `yaml:"document_types"`
}

func NewRegistry(defaultCode string, types ...domain.DocumentType) *Registry {
	if defaultCode == "" {
		defaultCode = DefaultTypeCode
	}
	r := &Registry{
		types:       make(map[string]domain.DocumentType, len(types)),
		defaultCode: defaultCode,
	}
	for _, t := range types {
		r.Put(t)
	}
	return r
}

// LoadFile читает каталог из YAML-файла
func LoadFile(path, defaultCode string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read catalog from %s: %w", path, err)
	}
	return Parse(data, defaultCode)
}

func Parse(data []byte, defaultCode string) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cannot parse catalog: %w", err)
	}

	r := NewRegistry(defaultCode)
	for i, t := range file.DocumentTypes {
		if t.Code == "" {
			return nil, fmt.Errorf("document type #%d has empty code", i)
		}
		if len(t.FileExtensions) == 0 {
			return nil, fmt.Errorf("document type %s has no file extensions", t.Code)
		}
		if _, exists := r.types[t.Code]; exists {
			return nil, fmt.Errorf("duplicate document type code: %s", t.Code)
		}
		r.Put(t)
	}

	if _, ok := r.types[r.defaultCode]; !ok {
		return nil, fmt.Errorf("default document type %q is not defined in catalog", r.defaultCode)
	}
	return r, nil
}

// Put добавляет или заменяет тип документа
func (r *Registry) Put(t domain.DocumentType) {
	exts := make([]string, 0, len(t.FileExtensions))
	for _, ext := range t.FileExtensions {
		exts = append(exts, NormalizeExtension(ext))
	}
	t.FileExtensions = exts
	if t.MaxFileSizeMB == 0 {
		t.MaxFileSizeMB = 10
	}

	r.mu.Lock()
	r.types[t.Code] = t
	r.mu.Unlock()
}

func (r *Registry) GetType(_ context.Context, code string) (*domain.DocumentType, error) {
	r.mu.RLock()
	t, ok := r.types[code]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.Error{
			Kind:    domain.KindUnknownTypeCode,
			Message: fmt.Sprintf("unknown document type code: %s", code),
		}
	}
	return &t, nil
}

func (r *Registry) GetDefaultType(ctx context.Context) (*domain.DocumentType, error) {
	return r.GetType(ctx, r.defaultCode)
}

// Types возвращает все типы, отсортированные по коду
func (r *Registry) Types() []domain.DocumentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.DocumentType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// NormalizeExtension приводит расширение к виду ".pdf"
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
