package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testItem is a simple struct for testing the generic queue
type testItem struct {
	ID   int
	Name string
}

func ids(items []testItem) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestQueue_New(t *testing.T) {
	q := New[testItem]()
	require.NotNil(t, q)
	assert.True(t, q.Empty())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PushPop(t *testing.T) {
	q := New[testItem]()

	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push(testItem{ID: 1, Name: "first"})
	q.Push(testItem{ID: 2}, testItem{ID: 3})
	assert.Equal(t, 3, q.Len())

	item, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "first", item.Name)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_PushFrontKeepsOrder(t *testing.T) {
	q := New[testItem]()
	q.Push(testItem{ID: 1}, testItem{ID: 2})
	batch := q.GetAndEmpty()

	q.Push(testItem{ID: 3})
	q.PushFront(batch...)
	q.PushFront()

	assert.Equal(t, []int{1, 2, 3}, ids(q.GetAndEmpty()))
}

func TestQueue_BoundedDropsOldest(t *testing.T) {
	q := NewBounded[testItem](3)
	q.Push(testItem{ID: 1}, testItem{ID: 2}, testItem{ID: 3}, testItem{ID: 4})
	assert.Equal(t, uint64(1), q.Dropped())

	q.PushFront(testItem{ID: 0})
	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, []int{2, 3, 4}, ids(q.GetAndEmpty()))
}

func TestQueue_ClearAndGetAndEmpty(t *testing.T) {
	q := New[testItem]()
	q.Push(testItem{ID: 1}, testItem{ID: 2})

	items := q.GetAndEmpty()
	assert.Len(t, items, 2)
	assert.True(t, q.Empty())

	q.Push(testItem{ID: 3})
	q.Clear()
	assert.True(t, q.Empty())
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[testItem]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(testItem{ID: g*100 + i})
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())
}
