package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docmanager/internal/auth"
	"docmanager/internal/catalog"
	"docmanager/internal/domain"
	"docmanager/internal/idgen"
	"docmanager/internal/metrics"
	"docmanager/internal/repository/memstore"
	"docmanager/internal/service"
	"docmanager/internal/service/blobfs"
)

var organizations = domain.OwnerKind{
	Name:      "organization",
	Table:     "organizations",
	PKColumn:  "id",
	KeyColumn: "name",
	IDColumn:  "document_owner_id",
}

type testEnv struct {
	store  *memstore.Store
	ledger *service.VersionLedger
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store := memstore.New()
	registry := catalog.NewRegistry("generic",
		domain.DocumentType{Code: "generic", Name: "Generic", FileExtensions: []string{".txt", ".pdf"}, MaxFileSizeMB: 10},
	)
	kinds, err := service.NewOwnerRegistry(organizations)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ids := idgen.NewGenerator()

	owners, err := service.NewOwnerService(store, kinds, ids, logger, m)
	require.NoError(t, err)
	ledger := service.NewVersionLedger(store, store, registry, blobfs.NewWithFs(afero.NewMemMapFs()), ids, logger, m)
	documents := service.NewDocumentService(store, owners, registry, ledger, ids, logger, m)

	router := NewRouter(Handlers{
		Owners:    NewOwnerHandler(owners, documents, logger),
		Documents: NewDocumentHandler(documents, logger),
		Versions:  NewVersionHandler(ledger, logger),
	}, reg, logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{store: store, ledger: ledger, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body io.Reader, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) doJSON(t *testing.T, method, path string, body interface{}, headers ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	return e.do(t, method, path, "application/json", &buf, headers...)
}

func (e *testEnv) doForm(t *testing.T, method, path string, fields map[string]string, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return e.do(t, method, path, mw.FormDataContentType(), &buf)
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (e *testEnv) owner(t *testing.T, key string) ownerResponse {
	t.Helper()
	resp := e.doJSON(t, http.MethodPost, "/v1/owners/organization", map[string]string{"key": key})
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, resp.StatusCode)
	var out ownerResponse
	decode(t, resp, &out)
	require.NotNil(t, out.Owner)
	require.NotNil(t, out.OwnerID)
	return out
}

func (e *testEnv) createDocument(t *testing.T, owner ownerResponse, title, content string) createDocumentResponse {
	t.Helper()
	resp := e.doForm(t, http.MethodPost, "/v1/documents", map[string]string{
		"owner_kind": "organization",
		"owner_id":   owner.OwnerID.String(),
		"title":      title,
	}, "contract.txt", content)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out createDocumentResponse
	decode(t, resp, &out)
	return out
}

func TestOwnerEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodPost, "/v1/owners/organization", map[string]string{"key": "acme"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created ownerResponse
	decode(t, resp, &created)
	assert.True(t, created.Created)
	require.NotNil(t, created.OwnerID)

	again := env.owner(t, "acme")
	assert.False(t, again.Created)
	assert.Equal(t, *created.OwnerID, *again.OwnerID)

	resp = env.do(t, http.MethodGet, "/v1/owners/organization/"+created.OwnerID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved domain.Owner
	decode(t, resp, &resolved)
	assert.Equal(t, "acme", resolved.Key)

	resp = env.do(t, http.MethodGet, "/v1/owners/organization/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/owners/organization/01890a5d-ac96-774b-bcce-b302099a8057", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errResp errorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, string(domain.KindOwnerNotFound), errResp.Error)

	resp = env.do(t, http.MethodGet, "/v1/owners/person/"+created.OwnerID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnsureIdentifierEndpoint(t *testing.T) {
	env := newTestEnv(t)
	row := env.store.InsertOwner(organizations, "legacy")
	require.Nil(t, row.OwnerID)

	path := "/v1/owners/organization/rows/" + strconv.FormatInt(row.PK, 10) + "/identifier"
	resp := env.do(t, http.MethodPost, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var first domain.Owner
	decode(t, resp, &first)
	require.NotNil(t, first.OwnerID)

	resp = env.do(t, http.MethodPost, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second domain.Owner
	decode(t, resp, &second)
	assert.Equal(t, *first.OwnerID, *second.OwnerID)

	resp = env.do(t, http.MethodPost, "/v1/owners/organization/rows/abc/identifier", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateDocumentEndpoint(t *testing.T) {
	env := newTestEnv(t)
	acme := env.owner(t, "acme")

	created := env.createDocument(t, acme, "Lease", "v1")
	require.NotNil(t, created.Version)
	assert.Equal(t, 1, created.Version.VersionNumber)
	assert.True(t, created.Version.IsCurrent)
	assert.Equal(t, domain.ValidationPending, created.Document.ValidationStatus)
	assert.Equal(t, domain.AccessInternal, created.Document.AccessLevel)

	resp := env.do(t, http.MethodGet, "/v1/documents/"+created.Document.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got domain.Document
	decode(t, resp, &got)
	assert.Equal(t, "Lease", got.Title)

	resp = env.doForm(t, http.MethodPost, "/v1/documents", map[string]string{
		"owner_kind": "organization",
		"owner_id":   acme.OwnerID.String(),
		"title":      "Lease",
	}, "other.txt", "other")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var errResp errorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, string(domain.KindDuplicateTitle), errResp.Error)

	resp = env.doForm(t, http.MethodPost, "/v1/documents", map[string]string{
		"owner_kind": "organization",
		"owner_id":   acme.OwnerID.String(),
		"title":      "Photo",
	}, "photo.exe", "MZ")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decode(t, resp, &errResp)
	assert.Equal(t, domain.CodeInvalidExtension, errResp.Code)

	resp = env.doForm(t, http.MethodPost, "/v1/documents", map[string]string{
		"owner_kind":      "organization",
		"owner_id":        acme.OwnerID.String(),
		"title":           "Permit",
		"expiration_date": "31.12.2030",
	}, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.doForm(t, http.MethodPost, "/v1/documents", map[string]string{
		"owner_kind":    "organization",
		"owner_id":      acme.OwnerID.String(),
		"title":         "Report",
		"document_type": "unknown",
	}, "report.txt", "r")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decode(t, resp, &errResp)
	assert.Equal(t, string(domain.KindUnknownTypeCode), errResp.Error)
}

func TestDocumentLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	acme := env.owner(t, "acme")
	created := env.createDocument(t, acme, "Lease", "v1")
	base := "/v1/documents/" + created.Document.ID.String()

	resp := env.doJSON(t, http.MethodPut, base+"/validation", map[string]interface{}{
		"status": "validated",
		"notes":  "ok",
	}, auth.HeaderUserID, "reviewer-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc domain.Document
	decode(t, resp, &doc)
	assert.Equal(t, domain.ValidationValidated, doc.ValidationStatus)
	require.NotNil(t, doc.ValidatedBy)
	assert.Equal(t, "reviewer-1", *doc.ValidatedBy)
	assert.NotNil(t, doc.ValidationDate)

	resp = env.doJSON(t, http.MethodPut, base+"/validation", map[string]interface{}{"status": "approved"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPut, base+"/access", map[string]interface{}{
		"access_level":    "confidential",
		"is_confidential": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &doc)
	assert.Equal(t, domain.AccessConfidential, doc.AccessLevel)
	assert.True(t, doc.IsConfidential)

	resp = env.doJSON(t, http.MethodPut, base+"/ai", map[string]interface{}{
		"extracted_data":   map[string]string{"inn": "7701234567"},
		"confidence_score": 87.5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &doc)
	require.NotNil(t, doc.AIConfidence)
	assert.Equal(t, 87.5, *doc.AIConfidence)
	assert.JSONEq(t, `{"inn":"7701234567"}`, string(doc.AIExtractedData))

	resp = env.doJSON(t, http.MethodPut, base+"/ai", map[string]interface{}{"confidence_score": 120})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, base, "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodGet, base+"/versions/current", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/restore", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVersionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	acme := env.owner(t, "acme")
	created := env.createDocument(t, acme, "Lease", "v1")
	base := "/v1/documents/" + created.Document.ID.String() + "/versions"

	resp := env.doForm(t, http.MethodPost, base, nil, "contract.txt", "v2")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var added addVersionResponse
	decode(t, resp, &added)
	assert.False(t, added.Reused)
	assert.Equal(t, 2, added.Version.VersionNumber)
	assert.True(t, added.Version.IsCurrent)

	resp = env.doForm(t, http.MethodPost, base, map[string]string{"strict": "true"}, "contract.txt", "v1")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var errResp errorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, string(domain.KindDuplicateContent), errResp.Error)

	resp = env.doForm(t, http.MethodPost, base, map[string]string{"set_current": "false"}, "contract.txt", "v1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &added)
	assert.True(t, added.Reused)
	assert.Equal(t, 1, added.Version.VersionNumber)
	assert.False(t, added.Version.IsCurrent)

	resp = env.doForm(t, http.MethodPost, base, map[string]string{"set_current": "maybe"}, "contract.txt", "v3")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, base+"/current", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var current domain.DocumentVersion
	decode(t, resp, &current)
	assert.Equal(t, 2, current.VersionNumber)

	resp = env.do(t, http.MethodPut, base+"/1/current", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &current)
	assert.Equal(t, 1, current.VersionNumber)
	assert.True(t, current.IsCurrent)

	resp = env.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []domain.DocumentVersion
	decode(t, resp, &list)
	require.Len(t, list, 2)
	currents := 0
	for _, v := range list {
		if v.IsCurrent {
			currents++
		}
	}
	assert.Equal(t, 1, currents)

	resp = env.do(t, http.MethodGet, base+"/2/content", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "contract.txt")

	resp = env.do(t, http.MethodGet, base+"/0", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodGet, base+"/two", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, base+"/latest", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted domain.DocumentVersion
	decode(t, resp, &deleted)
	assert.Equal(t, 2, deleted.VersionNumber)

	resp = env.do(t, http.MethodGet, base+"/2", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOwnerDocumentsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	acme := env.owner(t, "acme")
	first := env.createDocument(t, acme, "First", "1")
	// порядок внутри одной миллисекунды не определен
	time.Sleep(2 * time.Millisecond)
	second := env.createDocument(t, acme, "Second", "2")
	base := "/v1/owners/organization/" + acme.OwnerID.String() + "/documents"

	resp := env.do(t, http.MethodGet, base+"?recent=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var docs []domain.Document
	decode(t, resp, &docs)
	require.Len(t, docs, 1)
	assert.Equal(t, second.Document.ID, docs[0].ID)

	resp = env.do(t, http.MethodGet, base+"?since_days=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &docs)
	require.Len(t, docs, 2)
	assert.Equal(t, first.Document.ID, docs[1].ID)

	resp = env.do(t, http.MethodGet, base+"?type=generic", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &docs)
	assert.Len(t, docs, 2)

	resp = env.do(t, http.MethodGet, base+"?recent=-3", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, base+"?type=unknown", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	acme := env.owner(t, "acme")
	env.createDocument(t, acme, "Lease", "v1")

	resp := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "docmanager_documents_created_total 1")
}

func TestContentDisposition(t *testing.T) {
	for _, name := range []string{"contract.txt", "договор 2024.pdf", `quote"d.txt`} {
		disposition, params, err := mime.ParseMediaType(contentDisposition(name))
		require.NoError(t, err, name)
		assert.Equal(t, "attachment", disposition)
		assert.Equal(t, name, params["filename"])
	}
	assert.NotContains(t, contentDisposition("договор.pdf"), `\u`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(domain.KindConcurrencyViolation))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(domain.KindStorageUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(""))
}
