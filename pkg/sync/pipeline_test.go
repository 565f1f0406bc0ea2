package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessops/idsync/internal/testutil"
	"github.com/accessops/idsync/pkg/diffcache"
	"github.com/accessops/idsync/pkg/source"
)

// End-to-end through the real stack: SQLite source database, database/sql
// adapter, executor, differential cache, row mapper, task enqueue.
func TestPipelineAgainstRealSource(t *testing.T) {
	dsn := testutil.NewSourceDB(t,
		testutil.Person{CPF: "11122233344", Name: "Ana Souza", Classifier: "MEMBRO", State: "ATIVO"},
		testutil.Person{CPF: "55566677788", Name: "Bruno Lima", Classifier: "SERVIDOR", State: "ATIVO"},
	)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	adapter, err := source.NewDBAdapter(&source.Config{Driver: "sqlite3", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	executor, err := source.NewExecutor(log, adapter)
	require.NoError(t, err)

	cache, err := diffcache.New(log, executor, &diffcache.Config{
		Path:           filepath.Join(t.TempDir(), "cache.db"),
		RetentionHours: 24,
	})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Query.SQL = "SELECT cpf, nome, classe FROM pessoal WHERE situacao = 'ATIVO' ORDER BY cpf"

	queue := &fakeQueue{}
	svc, err := NewService(log, cfg, cache, queue, &stubLeader{leader: true})
	require.NoError(t, err)

	poller := svc.(*service)
	ctx := context.Background()

	// First cycle surfaces both people.
	poller.runCycle(ctx)
	require.Len(t, queue.upserts, 2)
	assert.Equal(t, "11122233344", queue.upserts[0].Cardholder.IDNumber)
	assert.Equal(t, "Ana Souza", queue.upserts[0].Cardholder.FirstName)
	assert.Equal(t, 7, queue.upserts[0].Cardholder.CHType)
	assert.Equal(t, 2, queue.upserts[1].Cardholder.CHType)

	// Nothing changed, nothing enqueued.
	poller.runCycle(ctx)
	assert.Len(t, queue.upserts, 2)
	assert.Empty(t, queue.removes)

	// A new hire appears, a person leaves.
	testutil.SeedPeople(t, dsn, testutil.Person{
		CPF: "99988877766", Name: "Carla Dias", Classifier: "MEMBRO", State: "ATIVO",
	})
	testutil.RemovePerson(t, dsn, "55566677788")

	poller.runCycle(ctx)

	require.Len(t, queue.upserts, 3)
	assert.Equal(t, "99988877766", queue.upserts[2].Cardholder.IDNumber)

	require.Len(t, queue.removes, 1)
	assert.Equal(t, "55566677788", queue.removes[0].IDNumber)
}

// A state flip from ATIVO filters the row out of the query, which the cache
// surfaces as a removal.
func TestPipelineStateChangeSurfacesRemoval(t *testing.T) {
	dsn := testutil.NewSourceDB(t,
		testutil.Person{CPF: "111", Name: "Ana", Classifier: "MEMBRO", State: "ATIVO"},
	)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	adapter, err := source.NewDBAdapter(&source.Config{Driver: "sqlite3", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	executor, err := source.NewExecutor(log, adapter)
	require.NoError(t, err)

	cache, err := diffcache.New(log, executor, &diffcache.Config{
		Path:           filepath.Join(t.TempDir(), "cache.db"),
		RetentionHours: 24,
	})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Query.SQL = "SELECT cpf, nome, classe FROM pessoal WHERE situacao = 'ATIVO'"

	queue := &fakeQueue{}
	svc, err := NewService(log, cfg, cache, queue, &stubLeader{leader: true})
	require.NoError(t, err)

	poller := svc.(*service)
	ctx := context.Background()

	poller.runCycle(ctx)
	require.Len(t, queue.upserts, 1)

	testutil.SeedPeople(t, dsn, testutil.Person{
		CPF: "111", Name: "Ana", Classifier: "MEMBRO", State: "DESLIGADO",
	})

	poller.runCycle(ctx)

	require.Len(t, queue.removes, 1)
	assert.Equal(t, "111", queue.removes[0].IDNumber)
	assert.True(t, queue.removes[0].EndVisit)
}
