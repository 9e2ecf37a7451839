package queue

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexedPriorityQueue_FindMinAfterRemove(t *testing.T) {
	q := NewIndexedPriorityQueue[int, int]()

	require.True(t, q.Add(1, 50))
	require.True(t, q.Add(2, 10))
	require.True(t, q.Add(3, 30))

	lo, err := q.FindMin()
	require.NoError(t, err)
	assert.Equal(t, 10, lo)

	assert.True(t, q.Remove(2))

	lo, err = q.FindMin()
	require.NoError(t, err)
	assert.Equal(t, 30, lo)

	hi, err := q.FindMax()
	require.NoError(t, err)
	assert.Equal(t, 50, hi)
}

func TestIndexedPriorityQueue_AddDuplicateKey(t *testing.T) {
	q := NewIndexedPriorityQueue[string, int]()

	assert.True(t, q.Add("timer", 5))
	assert.False(t, q.Add("timer", 1))

	v, ok := q.Get("timer")
	assert.True(t, ok)
	assert.Equal(t, 5, v, "duplicate Add must not mutate")
	assert.Equal(t, 1, q.Len())
}

func TestIndexedPriorityQueue_EmptyQueue(t *testing.T) {
	q := NewIndexedPriorityQueue[int, int]()

	_, err := q.DeleteMin()
	assert.True(t, errors.Is(err, ErrEmpty))
	_, err = q.DeleteMax()
	assert.True(t, errors.Is(err, ErrEmpty))
	_, err = q.FindMin()
	assert.True(t, errors.Is(err, ErrEmpty))
	_, _, err = q.FindMaxWithKey()
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestIndexedPriorityQueue_WithKey(t *testing.T) {
	q := NewIndexedPriorityQueue[string, float64]()
	q.Add("a", 2.5)
	q.Add("b", -1)
	q.Add("c", 9)

	k, v, err := q.FindMinWithKey()
	require.NoError(t, err)
	assert.Equal(t, "b", k)
	assert.Equal(t, -1.0, v)

	k, v, err = q.FindMaxWithKey()
	require.NoError(t, err)
	assert.Equal(t, "c", k)
	assert.Equal(t, 9.0, v)
}

func TestIndexedPriorityQueue_Indexer(t *testing.T) {
	q := NewIndexedPriorityQueue[int, int]()

	_, err := q.Value(42)
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	q.Set(1, 100) // new key behaves like Add
	q.Set(2, 200)
	q.Set(3, 300)

	v, err := q.Value(2)
	require.NoError(t, err)
	assert.Equal(t, 200, v)

	// Reprioritise 3 to the front and 1 to the back.
	q.Set(3, 1)
	q.Set(1, 999)

	k, _, err := q.FindMinWithKey()
	require.NoError(t, err)
	assert.Equal(t, 3, k)

	k, _, err = q.FindMaxWithKey()
	require.NoError(t, err)
	assert.Equal(t, 1, k)
	assert.Equal(t, 3, q.Len())
}

func TestIndexedPriorityQueue_DeleteMinRemovesKey(t *testing.T) {
	q := NewIndexedPriorityQueue[string, int]()
	q.Add("x", 1)
	q.Add("y", 2)

	v, err := q.DeleteMin()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, q.Contains("x"))
	assert.True(t, q.Contains("y"))

	v, err = q.DeleteMax()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.False(t, q.Contains("y"))
	assert.Zero(t, q.Len())
}

func TestIndexedPriorityQueue_RemoveAbsent(t *testing.T) {
	q := NewIndexedPriorityQueue[int, int]()
	q.Add(1, 1)
	assert.False(t, q.Remove(2))
	assert.Equal(t, 1, q.Len())
}

func TestIndexedPriorityQueue_DeleteMinNonDecreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	q := NewIndexedPriorityQueue[int, int]()

	for i := 0; i < 500; i++ {
		q.Add(i, rng.Intn(1000))
	}
	// Remove every third key so entries leave from the middle of both heaps.
	for i := 0; i < 500; i += 3 {
		require.True(t, q.Remove(i))
	}

	prev := -1
	for q.Len() > 0 {
		v, err := q.DeleteMin()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestIndexedPriorityQueue_DeleteMaxNonIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	q := NewIndexedPriorityQueue[int, int]()

	want := make([]int, 0, 200)
	for i := 0; i < 200; i++ {
		v := rng.Intn(50)
		q.Add(i, v)
		want = append(want, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(want)))

	got := make([]int, 0, 200)
	for q.Len() > 0 {
		v, err := q.DeleteMax()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, want, got)
}

type job struct {
	name     string
	deadline int
}

func TestIndexedPriorityQueue_CustomLess(t *testing.T) {
	q := NewIndexedPriorityQueueFunc[string](func(a, b job) bool { return a.deadline < b.deadline })

	q.Add("flush", job{"flush", 30})
	q.Add("ping", job{"ping", 5})
	q.Add("save", job{"save", 12})

	next, err := q.DeleteMin()
	require.NoError(t, err)
	assert.Equal(t, "ping", next.name)

	assert.ElementsMatch(t, []string{"flush", "save"}, q.Keys())

	q.Clear()
	assert.Zero(t, q.Len())
	_, err = q.FindMin()
	assert.Error(t, err)
}

func TestIndexedPriorityQueue_Concurrent(t *testing.T) {
	q := NewIndexedPriorityQueue[int, int]()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				key := base*1000 + i
				q.Add(key, i)
				if i%2 == 0 {
					q.Remove(key)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 8*125, q.Len())
	prev := -1
	for q.Len() > 0 {
		v, err := q.DeleteMin()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}
