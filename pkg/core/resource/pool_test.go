package resource

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
)

func defaultTotals() Requirements {
	return Requirements{CPU: 100, Memory: 16384, Storage: 1000000, Network: 1000}
}

func TestPool_AllocateRelease(t *testing.T) {
	p := NewPool(defaultTotals())

	id, err := p.Allocate("exec-1", Requirements{CPU: 10, Memory: 1024})
	require.NoError(t, err)
	snap := p.Snapshot()
	assert.Equal(t, 90.0, snap[CPU].Available)
	assert.Equal(t, 10.0, snap[CPU].Allocated)
	assert.Equal(t, 15360.0, snap[Memory].Available)
	require.NoError(t, p.CheckInvariant())

	assert.True(t, p.Release(id))
	assert.False(t, p.Release(id), "重复释放应返回false")
	snap = p.Snapshot()
	assert.Equal(t, 100.0, snap[CPU].Available)
	assert.Equal(t, 0.0, snap[CPU].Allocated)
	require.NoError(t, p.CheckInvariant())
}

func TestPool_AllOrNothing(t *testing.T) {
	p := NewPool(Requirements{CPU: 10, Memory: 10})

	_, err := p.Allocate("a", Requirements{CPU: 5, Memory: 20})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrResourceExhausted))

	snap := p.Snapshot()
	assert.Equal(t, 10.0, snap[CPU].Available, "失败的分配不应修改任何资源")
	assert.Equal(t, 0, p.ReservationCount())
}

func TestPool_NegativeRequirement(t *testing.T) {
	p := NewPool(defaultTotals())
	_, err := p.Allocate("a", Requirements{CPU: -1})
	var ve *types.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestPool_NonFiniteRequirement(t *testing.T) {
	p := NewPool(defaultTotals())
	for _, req := range []Requirements{
		{CPU: math.NaN()},
		{Memory: math.Inf(1)},
		{Network: math.Inf(-1)},
	} {
		_, err := p.Allocate("a", req)
		var ve *types.ValidationError
		assert.True(t, errors.As(err, &ve), "req=%+v", req)
	}
	assert.Equal(t, 0, p.ReservationCount())
	snap := p.Snapshot()
	assert.Equal(t, 100.0, snap[CPU].Available)
	assert.Equal(t, 16384.0, snap[Memory].Available)
	require.NoError(t, p.CheckInvariant())
}

func TestPool_ReleaseOwner(t *testing.T) {
	p := NewPool(defaultTotals())
	for i := 0; i < 3; i++ {
		_, err := p.Allocate("exec-1", Requirements{CPU: 1})
		require.NoError(t, err)
	}
	_, err := p.Allocate("exec-2", Requirements{CPU: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, p.ReleaseOwner("exec-1"))
	assert.Equal(t, 0, p.ReleaseOwner("exec-1"))
	assert.Equal(t, []string{"exec-2"}, p.Owners())
	assert.Equal(t, 2.0, p.Snapshot()[CPU].Allocated)
	require.NoError(t, p.CheckInvariant())
}

func TestPool_ConcurrentInvariant(t *testing.T) {
	p := NewPool(Requirements{CPU: 50, Memory: 500, Storage: 500, Network: 50})

	var wg sync.WaitGroup
	var violations sync.Map
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			held := make([]string, 0)
			for i := 0; i < 200; i++ {
				if len(held) > 0 && rng.Intn(2) == 0 {
					idx := rng.Intn(len(held))
					p.Release(held[idx])
					held = append(held[:idx], held[idx+1:]...)
				} else {
					id, err := p.Allocate("owner", Requirements{
						CPU:     float64(rng.Intn(5)),
						Memory:  float64(rng.Intn(50)),
						Storage: float64(rng.Intn(50)),
						Network: float64(rng.Intn(5)),
					})
					if err == nil {
						held = append(held, id)
					}
				}
				if err := p.CheckInvariant(); err != nil {
					violations.Store(err.Error(), true)
				}
			}
			for _, id := range held {
				p.Release(id)
			}
		}(int64(g))
	}
	wg.Wait()

	count := 0
	violations.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.Zero(t, count)
	for _, c := range p.Snapshot() {
		assert.Equal(t, c.Total, c.Available)
		assert.Zero(t, c.Allocated)
	}
}

func TestPool_Utilization(t *testing.T) {
	p := NewPool(Requirements{CPU: 100, Memory: 100})
	_, err := p.Allocate("x", Requirements{CPU: 25})
	require.NoError(t, err)
	u := p.Utilization()
	assert.InDelta(t, 0.25, u[CPU], 1e-9)
	assert.InDelta(t, 0, u[Memory], 1e-9)
	_, ok := u[Storage]
	assert.False(t, ok, "总量为0的资源不计算使用率")
}
