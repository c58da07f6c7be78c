package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"docmanager/internal/domain"
)

func TestAcmeScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acme := h.owner(t, "Acme")

	doc, v1 := h.create(t, acme, "Charter", "v1")
	assert.Equal(t, 1, v1.VersionNumber)
	assert.True(t, v1.IsCurrent)

	count, err := h.ledger.Count(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	v2, reused, err := h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{File: file("charter.txt", "v2"), SetCurrent: true})
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 2, v2.VersionNumber)

	current, err := h.ledger.GetCurrent(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)

	first, err := h.ledger.GetVersion(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.False(t, first.IsCurrent)
	assert.Equal(t, v2.ID, mustNotNil(t, first.ReplacedBy))

	latest, err := h.ledger.LatestNumber(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	content, err := h.ledger.ReadContent(ctx, current)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), content)
}

func TestAddVersionStrictDuplicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	doc, _ := h.create(t, h.owner(t, "Acme"), "Charter", "v1")

	params := domain.AddVersionParams{File: file("charter.txt", "v2"), SetCurrent: true, Strict: true}
	_, _, err := h.ledger.AddVersion(ctx, doc.ID, params)
	require.NoError(t, err)

	_, _, err = h.ledger.AddVersion(ctx, doc.ID, params)
	assert.True(t, errors.Is(err, domain.ErrDuplicateContent))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DuplicatesRejected))

	count, err := h.ledger.Count(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddVersionReusesExistingContent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	doc, v1 := h.create(t, h.owner(t, "Acme"), "Charter", "v1")
	_, _, err := h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{File: file("charter.txt", "v2"), SetCurrent: true})
	require.NoError(t, err)
	blobs := h.blobCount(t)

	v, reused, err := h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{File: file("again.txt", "v1"), SetCurrent: true})
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, v1.ID, v.ID)
	assert.True(t, v.IsCurrent)
	assert.Equal(t, blobs, h.blobCount(t))

	count, err := h.ledger.Count(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddVersionValidatesAgainstType(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	doc, _ := h.create(t, h.owner(t, "Acme"), "Charter", "v1")

	_, _, err := h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{File: file("charter.exe", "x"), SetCurrent: true})
	assert.Equal(t, domain.CodeInvalidExtension, domain.CodeOf(err))

	_, _, err = h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{SetCurrent: true})
	assert.Equal(t, domain.CodeEmptyFile, domain.CodeOf(err))
}

func TestAddVersionWithoutSetCurrent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	doc, v1 := h.create(t, h.owner(t, "Acme"), "Charter", "v1")

	v2, _, err := h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{File: file("charter.txt", "v2")})
	require.NoError(t, err)
	assert.False(t, v2.IsCurrent)

	current, err := h.ledger.GetCurrent(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, current.ID)

	latest, err := h.ledger.GetLatest(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)
}

func TestFirstVersionAlwaysCurrent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	doc, _, err := h.docs.CreateWithFile(ctx, domain.NewDocumentParams{
		Owner: h.owner(t, "Acme"), DocumentType: "other", Title: "Empty",
	})
	require.NoError(t, err)

	v, _, err := h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{File: file("charter.txt", "v1")})
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)
	assert.True(t, v.IsCurrent)
}

func TestConcurrentAddVersion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	doc, _ := h.create(t, h.owner(t, "Acme"), "Charter", "v0")

	const writers = 24
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{
				File:       file("charter.txt", fmt.Sprintf("content-%d", i)),
				SetCurrent: true,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	versions, err := h.ledger.ListVersions(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, writers+1)

	numbers := make([]int, 0, len(versions))
	currents := 0
	for _, v := range versions {
		numbers = append(numbers, v.VersionNumber)
		if v.IsCurrent {
			currents++
		}
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		assert.Equal(t, i+1, n)
	}
	assert.Equal(t, 1, currents)
}

func TestSetCurrentVersionRollback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	doc, v1 := h.create(t, h.owner(t, "Acme"), "Charter", "v1")
	v2, _, err := h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{File: file("charter.txt", "v2"), SetCurrent: true})
	require.NoError(t, err)

	rolled, err := h.ledger.SetCurrentVersion(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, rolled.ID)
	assert.True(t, rolled.IsCurrent)
	assert.Nil(t, rolled.ReplacedBy)

	outgoing, err := h.ledger.GetVersion(ctx, doc.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, outgoing.ID)
	assert.False(t, outgoing.IsCurrent)
	assert.Equal(t, v1.ID, mustNotNil(t, outgoing.ReplacedBy))

	_, err = h.ledger.SetCurrentVersion(ctx, doc.ID, 7)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDeleteLatestVersion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	doc, v1 := h.create(t, h.owner(t, "Acme"), "Charter", "v1")
	_, _, err := h.ledger.AddVersion(ctx, doc.ID, domain.AddVersionParams{File: file("charter.txt", "v2"), SetCurrent: true})
	require.NoError(t, err)

	deleted, err := h.ledger.DeleteLatestVersion(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted.VersionNumber)

	current, err := h.ledger.GetCurrent(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, current.ID)

	latest, err := h.ledger.LatestNumber(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)
}

func TestLedgerReadsHideDeletedDocument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	doc, _ := h.create(t, h.owner(t, "Acme"), "Charter", "v1")
	require.NoError(t, h.docs.SoftDelete(ctx, doc.ID))

	for _, id := range []uuid.UUID{doc.ID, uuid.New()} {
		_, err := h.ledger.GetCurrent(ctx, id)
		assert.True(t, errors.Is(err, domain.ErrNotFound), "GetCurrent: %v", err)

		_, err = h.ledger.GetVersion(ctx, id, 1)
		assert.True(t, errors.Is(err, domain.ErrNotFound), "GetVersion: %v", err)

		_, err = h.ledger.GetLatest(ctx, id)
		assert.True(t, errors.Is(err, domain.ErrNotFound), "GetLatest: %v", err)

		_, err = h.ledger.ListVersions(ctx, id)
		assert.True(t, errors.Is(err, domain.ErrNotFound), "ListVersions: %v", err)

		n, err := h.ledger.Count(ctx, id)
		assert.True(t, errors.Is(err, domain.ErrNotFound), "Count: %v", err)
		assert.Zero(t, n)

		n, err = h.ledger.LatestNumber(ctx, id)
		assert.True(t, errors.Is(err, domain.ErrNotFound), "LatestNumber: %v", err)
		assert.Zero(t, n)
	}

	// после восстановления версии снова видны
	_, err := h.docs.Restore(ctx, doc.ID)
	require.NoError(t, err)
	count, err := h.ledger.Count(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
