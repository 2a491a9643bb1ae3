package postgres_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/postgres"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// newPostgresStore levanta un PostgreSQL real, aplica las migraciones y
// devuelve un SequenceStore sobre el pool.
func newPostgresStore(t *testing.T) *postgres.SequenceStore {
	t.Helper()
	if testing.Short() {
		t.Skip("requiere Docker; se omite con -short")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ecf_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "no se pudo iniciar PostgreSQL")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool, zerolog.Nop()))
	return postgres.NewSequenceStoreFromPool(pool)
}

func TestSequenceStore_ConcurrentAllocatePostgres(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &entity.FiscalSequenceCounter{TypeCode: ecf.TypeConsumo, UpperBound: 1000}))

	const workers, perWorker = 20, 10
	ncfs := map[string]bool{}
	var (
		mu      sync.Mutex
		numbers []int64
		wg      conc.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			for i := 0; i < perWorker; i++ {
				issue, err := store.Allocate(ctx, ecf.TypeConsumo, "")
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				numbers = append(numbers, issue.Number)
				ncfs[issue.NCF] = true
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	require.Len(t, numbers, workers*perWorker)
	assert.Len(t, ncfs, workers*perWorker, "cada e-NCF se asigna una sola vez")
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, n := range numbers {
		assert.Equal(t, int64(i+1), n, "secuencia sin huecos")
	}

	c, err := store.Get(ctx, ecf.TypeConsumo)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), c.LastIssued)
}

func TestSequenceStore_ConcurrentExhaustionPostgres(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &entity.FiscalSequenceCounter{TypeCode: ecf.TypeCreditoFiscal, UpperBound: 15}))

	var (
		mu                sync.Mutex
		issued, exhausted int
		wg                conc.WaitGroup
	)
	for w := 0; w < 25; w++ {
		wg.Go(func() {
			_, err := store.Allocate(ctx, ecf.TypeCreditoFiscal, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case assert.ErrorIs(t, err, domain.ErrSequenceExhausted):
				exhausted++
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 15, issued, "nunca se supera el límite autorizado")
	assert.Equal(t, 10, exhausted)

	c, err := store.Get(ctx, ecf.TypeCreditoFiscal)
	require.NoError(t, err)
	assert.Equal(t, int64(15), c.LastIssued)
}
