package sequence_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/application/sequence"
	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// memStore contador en memoria con un mutex por tipo, como el bloqueo de fila de la base.
type memStore struct {
	mu       sync.Mutex
	locks    map[ecf.DocumentType]*sync.Mutex
	counters map[ecf.DocumentType]*entity.FiscalSequenceCounter
	issues   []entity.SequenceIssue
}

func newMemStore(counters ...entity.FiscalSequenceCounter) *memStore {
	s := &memStore{locks: map[ecf.DocumentType]*sync.Mutex{}, counters: map[ecf.DocumentType]*entity.FiscalSequenceCounter{}}
	for i := range counters {
		c := counters[i]
		s.counters[c.TypeCode] = &c
		s.locks[c.TypeCode] = &sync.Mutex{}
	}
	return s
}

func (s *memStore) Allocate(_ context.Context, t ecf.DocumentType, owner string) (*entity.SequenceIssue, error) {
	s.mu.Lock()
	lock, ok := s.locks[t]
	s.mu.Unlock()
	if !ok {
		return nil, domain.NewError(domain.ErrSequenceExhausted, "allocate", "", nil)
	}
	lock.Lock()
	defer lock.Unlock()

	c := s.counters[t]
	next := c.LastIssued + 1
	if next > c.UpperBound {
		return nil, domain.NewError(domain.ErrSequenceExhausted, "allocate", "", nil)
	}
	ncf, err := ecf.FormatNCF(t, next)
	if err != nil {
		return nil, err
	}
	c.LastIssued = next
	issue := entity.SequenceIssue{NCF: ncf, TypeCode: t, Number: next, OwnerRef: owner, IssuedAt: time.Now()}
	s.mu.Lock()
	s.issues = append(s.issues, issue)
	s.mu.Unlock()
	return &issue, nil
}

func (s *memStore) Get(_ context.Context, t ecf.DocumentType) (*entity.FiscalSequenceCounter, error) {
	return s.counters[t], nil
}

func (s *memStore) List(context.Context) ([]*entity.FiscalSequenceCounter, error) {
	var out []*entity.FiscalSequenceCounter
	for _, c := range s.counters {
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) Create(_ context.Context, c *entity.FiscalSequenceCounter) error {
	if _, ok := s.counters[c.TypeCode]; ok {
		return domain.ErrDuplicate
	}
	s.counters[c.TypeCode] = c
	s.locks[c.TypeCode] = &sync.Mutex{}
	return nil
}

func (s *memStore) ExtendUpperBound(_ context.Context, t ecf.DocumentType, upper int64) error {
	c, ok := s.counters[t]
	if !ok || upper <= c.UpperBound {
		return domain.ErrInvalidInput
	}
	c.UpperBound = upper
	return nil
}

func newAllocator(s *memStore) *sequence.Allocator {
	return sequence.NewAllocator(s, nil, zerolog.Nop())
}

func TestAllocateNext_ConsecutiveFromZero(t *testing.T) {
	a := newAllocator(newMemStore(entity.FiscalSequenceCounter{TypeCode: ecf.TypeConsumo, UpperBound: 100}))

	first, err := a.AllocateNext(context.Background(), ecf.TypeConsumo)
	require.NoError(t, err)
	second, err := a.AllocateNext(context.Background(), ecf.TypeConsumo)
	require.NoError(t, err)

	assert.Equal(t, "E320000000001", first)
	assert.Equal(t, "E320000000002", second)
}

func TestAllocateNext_Exhausted(t *testing.T) {
	a := newAllocator(newMemStore(entity.FiscalSequenceCounter{TypeCode: ecf.TypeCreditoFiscal, LastIssued: 4, UpperBound: 5}))

	ncf, err := a.AllocateNext(context.Background(), ecf.TypeCreditoFiscal)
	require.NoError(t, err)
	assert.Equal(t, "E310000000005", ncf)

	_, err = a.AllocateNext(context.Background(), ecf.TypeCreditoFiscal)
	assert.ErrorIs(t, err, domain.ErrSequenceExhausted)
}

func TestAllocateNext_InvalidType(t *testing.T) {
	a := newAllocator(newMemStore())
	_, err := a.AllocateNext(context.Background(), "99")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// Llamadas concurrentes para el mismo tipo nunca repiten número y no dejan huecos.
func TestAllocateNext_ConcurrentCallersNeverCollide(t *testing.T) {
	const workers, perWorker = 16, 25
	store := newMemStore(
		entity.FiscalSequenceCounter{TypeCode: ecf.TypeConsumo, UpperBound: workers * perWorker},
		entity.FiscalSequenceCounter{TypeCode: ecf.TypeCreditoFiscal, UpperBound: workers * perWorker},
	)
	a := newAllocator(store)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = map[ecf.DocumentType][]int64{}
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			typeCode := ecf.TypeConsumo
			if w%2 == 1 {
				typeCode = ecf.TypeCreditoFiscal
			}
			for i := 0; i < perWorker*2; i++ {
				issue, err := a.AllocateFor(context.Background(), typeCode, "")
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrSequenceExhausted)
					return
				}
				mu.Lock()
				got[typeCode] = append(got[typeCode], issue.Number)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	for typeCode, nums := range got {
		sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
		require.Len(t, nums, workers*perWorker, "tipo %s", typeCode)
		for i, n := range nums {
			assert.Equal(t, int64(i+1), n, "tipo %s: número repetido o hueco", typeCode)
		}
	}
}

func TestAllocateFor_RecordsOwner(t *testing.T) {
	store := newMemStore(entity.FiscalSequenceCounter{TypeCode: ecf.TypeNotaCredito, UpperBound: 10})
	a := newAllocator(store)

	issue, err := a.AllocateFor(context.Background(), ecf.TypeNotaCredito, "doc-42")
	require.NoError(t, err)
	assert.Equal(t, "doc-42", issue.OwnerRef)
	require.Len(t, store.issues, 1)
	assert.Equal(t, "E340000000001", store.issues[0].NCF)
}

func TestExtendRange(t *testing.T) {
	store := newMemStore(entity.FiscalSequenceCounter{TypeCode: ecf.TypeConsumo, LastIssued: 1, UpperBound: 1})
	a := newAllocator(store)

	_, err := a.AllocateNext(context.Background(), ecf.TypeConsumo)
	require.ErrorIs(t, err, domain.ErrSequenceExhausted)

	require.NoError(t, a.ExtendRange(context.Background(), ecf.TypeConsumo, 3))
	ncf, err := a.AllocateNext(context.Background(), ecf.TypeConsumo)
	require.NoError(t, err)
	assert.Equal(t, "E320000000002", ncf)
}
