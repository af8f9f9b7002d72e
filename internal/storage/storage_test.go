package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangchj/inflight-sub000/internal/logging"
)

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	logger := logging.NewNopLogger()

	sqliteRepo, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteRepo.Close() })

	return map[string]Repository{
		"sqlite": sqliteRepo,
		"json":   NewJSONRepository(t.TempDir(), logger),
		"memory": NewMemoryRepository(),
	}
}

func TestRepository_LoadMissing(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.LoadDocument(context.Background(), KindProject, "nope")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestRepository_SaveLoadOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.SaveDocument(ctx, KindProject, "p1", []byte(`{"version":3}`)))
			require.NoError(t, repo.SaveDocument(ctx, KindWorkspace, "p1", []byte(`{"version":2}`)))

			got, err := repo.LoadDocument(ctx, KindProject, "p1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"version":3}`, string(got))

			require.NoError(t, repo.SaveDocument(ctx, KindProject, "p1", []byte(`{"version":4}`)))
			got, err = repo.LoadDocument(ctx, KindProject, "p1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"version":4}`, string(got))

			got, err = repo.LoadDocument(ctx, KindWorkspace, "p1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"version":2}`, string(got))
		})
	}
}

func TestSQLiteRepository_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "inflight.db")

	repo, err := OpenSQLite(dbPath, logging.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, repo.SaveDocument(ctx, KindProject, "default", []byte("data")))
	require.NoError(t, repo.Close())

	repo, err = OpenSQLite(dbPath, logging.NewNopLogger())
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.LoadDocument(ctx, KindProject, "default")
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestJSONRepository_RejectsBadNames(t *testing.T) {
	repo := NewJSONRepository(t.TempDir(), logging.NewNopLogger())
	ctx := context.Background()

	for _, id := range []string{"", "..", "../escape", "a/b", `a\b`, "nul\x00"} {
		err := repo.SaveDocument(ctx, KindProject, id, []byte("x"))
		assert.Error(t, err, "id %q", id)
		assert.False(t, errors.Is(err, ErrNotFound))
	}
}

func TestJSONRepository_FileLayout(t *testing.T) {
	dir := t.TempDir()
	repo := NewJSONRepository(dir, logging.NewNopLogger())
	require.NoError(t, repo.SaveDocument(context.Background(), KindProject, "default", []byte("{}")))

	info, err := os.Stat(filepath.Join(dir, "project", "default.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePermission), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Join(dir, "project"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestMemoryRepository_CopiesData(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	doc := []byte("abc")
	require.NoError(t, repo.SaveDocument(ctx, KindProject, "p", doc))
	doc[0] = 'x'

	got, err := repo.LoadDocument(ctx, KindProject, "p")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

type countingRepo struct {
	*MemoryRepository
	mu    sync.Mutex
	saves int
	fail  bool
}

func (c *countingRepo) SaveDocument(ctx context.Context, kind, id string, doc []byte) error {
	c.mu.Lock()
	c.saves++
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return c.MemoryRepository.SaveDocument(ctx, kind, id, doc)
}

func (c *countingRepo) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func TestAutosaver_Coalesces(t *testing.T) {
	repo := &countingRepo{MemoryRepository: NewMemoryRepository()}
	a := NewAutosaver(repo, 20*time.Millisecond, logging.NewNopLogger())

	for i := 0; i < 10; i++ {
		a.Schedule(KindProject, "p", []byte{byte('0' + i)})
	}

	require.Eventually(t, func() bool { return a.Pending() == 0 && repo.count() > 0 },
		2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, repo.count())
	got, err := repo.LoadDocument(context.Background(), KindProject, "p")
	require.NoError(t, err)
	assert.Equal(t, "9", string(got))
}

func TestAutosaver_Flush(t *testing.T) {
	repo := &countingRepo{MemoryRepository: NewMemoryRepository()}
	a := NewAutosaver(repo, time.Hour, logging.NewNopLogger())

	a.Schedule(KindProject, "p", []byte("project"))
	a.Schedule(KindWorkspace, "p", []byte("workspace"))
	assert.Equal(t, 2, a.Pending())

	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, 0, a.Pending())
	assert.Equal(t, 2, repo.count())

	got, err := repo.LoadDocument(context.Background(), KindWorkspace, "p")
	require.NoError(t, err)
	assert.Equal(t, "workspace", string(got))
}

func TestAutosaver_FailedSaveStaysPending(t *testing.T) {
	repo := &countingRepo{MemoryRepository: NewMemoryRepository(), fail: true}
	a := NewAutosaver(repo, time.Hour, logging.NewNopLogger())

	a.Schedule(KindProject, "p", []byte("v1"))
	assert.Error(t, a.Flush(context.Background()))
	assert.Equal(t, 1, a.Pending())

	repo.mu.Lock()
	repo.fail = false
	repo.mu.Unlock()

	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, 0, a.Pending())
}
