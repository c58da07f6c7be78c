package service

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"docmanager/internal/catalog"
	"docmanager/internal/domain"
	"docmanager/internal/idgen"
	"docmanager/internal/metrics"
	"docmanager/internal/repository/memstore"
	"docmanager/internal/service/blobfs"
)

var testOwnerKind = domain.OwnerKind{
	Name:      "organization",
	Table:     "organizations",
	PKColumn:  "id",
	KeyColumn: "name",
	IDColumn:  "document_owner_id",
	Columns:   []string{"display_name"},
}

type harness struct {
	store   *memstore.Store
	fs      afero.Fs
	catalog *catalog.Registry
	metrics *metrics.Metrics
	owners  *OwnerService
	ledger  *VersionLedger
	docs    *DocumentService
	cleanup *CleanupService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, afero.NewMemMapFs(), zaptest.NewLogger(t))
}

func newHarnessWith(t *testing.T, fs afero.Fs, logger *zap.Logger) *harness {
	t.Helper()

	store := memstore.New()
	registry := catalog.NewRegistry("generic",
		domain.DocumentType{Code: "generic", Name: "Generic", FileExtensions: []string{".txt", ".pdf"}, MaxFileSizeMB: 10},
		domain.DocumentType{Code: "other", Name: "Other", FileExtensions: []string{".txt", ".bin"}, MaxFileSizeMB: 10},
		domain.DocumentType{Code: "identity", Name: "Identity", FileExtensions: []string{".txt"}, MaxFileSizeMB: 1, MaxCountPerOwner: 2},
	)
	kinds, err := NewOwnerRegistry(testOwnerKind)
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	ids := idgen.NewGenerator()
	blobs := blobfs.NewWithFs(fs)

	owners, err := NewOwnerService(store, kinds, ids, logger, m)
	require.NoError(t, err)
	ledger := NewVersionLedger(store, store, registry, blobs, ids, logger, m)

	return &harness{
		store:   store,
		fs:      fs,
		catalog: registry,
		metrics: m,
		owners:  owners,
		ledger:  ledger,
		docs:    NewDocumentService(store, owners, registry, ledger, ids, logger, m),
		cleanup: NewCleanupService(store, logger),
	}
}

func (h *harness) owner(t *testing.T, key string) domain.OwnerRef {
	t.Helper()
	o, _, err := h.owners.ResolveOrCreate(context.Background(), testOwnerKind.Name, key)
	require.NoError(t, err)
	return o.Ref()
}

func (h *harness) create(t *testing.T, owner domain.OwnerRef, title string, content string) (*domain.Document, *domain.DocumentVersion) {
	t.Helper()
	doc, v, err := h.docs.CreateWithFile(context.Background(), domain.NewDocumentParams{
		Owner:        owner,
		DocumentType: "other",
		Title:        title,
		File:         &domain.FileUpload{Filename: "charter.txt", Data: []byte(content)},
	})
	require.NoError(t, err)
	return doc, v
}

// blobCount считает сохраненные файлы
func (h *harness) blobCount(t *testing.T) int {
	t.Helper()
	count := 0
	err := afero.Walk(h.fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func file(name, content string) *domain.FileUpload {
	return &domain.FileUpload{Filename: name, Data: []byte(content)}
}

func mustNotNil(t *testing.T, id *uuid.UUID) uuid.UUID {
	t.Helper()
	require.NotNil(t, id)
	return *id
}
