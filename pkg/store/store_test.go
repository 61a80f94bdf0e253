package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/resource"
)

func spec(t *testing.T, ref string, replicas int) resource.Spec {
	img, err := image.ParseRef(ref)
	require.NoError(t, err)
	return resource.Spec{Image: img, Replicas: replicas}
}

func TestPublishAndCurrent(t *testing.T) {
	s := NewStore(log.NewNopLogger())

	_, ok := s.Current()
	assert.False(t, ok)

	rev, err := s.Publish(spec(t, "app:v1", 2))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev.Counter)
	assert.NotEmpty(t, rev.Digest)

	current, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "app:v1", current.Image.String())
	assert.Equal(t, rev, current.Revision)
}

func TestPublishValidates(t *testing.T) {
	s := NewStore(log.NewNopLogger())

	_, err := s.Publish(spec(t, "app:v1", -1))
	assert.Error(t, err)
	assert.True(t, resource.IsValidation(err))

	_, err = s.Publish(resource.Spec{Replicas: 1})
	assert.Error(t, err)
	assert.True(t, resource.IsValidation(err))

	// rejected publishes leave no trace
	_, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, s.History())
}

func TestLastPublishWins(t *testing.T) {
	s := NewStore(log.NewNopLogger())

	_, err := s.Publish(spec(t, "app:v1", 2))
	require.NoError(t, err)
	_, err = s.Publish(spec(t, "app:v2", 2))
	require.NoError(t, err)

	current, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "app:v2", current.Image.String())
	assert.Equal(t, uint64(2), current.Revision.Counter)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "app:v1", history[0].Image.String())
	assert.Equal(t, "app:v2", history[1].Image.String())
}

func TestConcurrentPublishesAreOrdered(t *testing.T) {
	s := NewStore(log.NewNopLogger())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Publish(spec(t, fmt.Sprintf("app:v%d", i), 1))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history := s.History()
	require.Len(t, history, n)
	for i, state := range history {
		assert.Equal(t, uint64(i+1), state.Revision.Counter)
	}
	current, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, history[n-1].Revision, current.Revision)
}

func TestChangesCoalesce(t *testing.T) {
	s := NewStore(log.NewNopLogger())

	for i := 0; i < 5; i++ {
		_, err := s.Publish(spec(t, "app:v1", i))
		require.NoError(t, err)
	}

	// many publishes, one pending signal
	select {
	case <-s.Changes():
	default:
		t.Fatal("expected a pending change signal")
	}
	select {
	case <-s.Changes():
		t.Fatal("expected signals to coalesce")
	default:
	}
}

func TestExport(t *testing.T) {
	s := NewStore(log.NewNopLogger())
	_, err := s.Publish(spec(t, "app:v1", 2))
	require.NoError(t, err)

	out, err := s.Export()
	require.NoError(t, err)
	assert.Contains(t, string(out), "app:v1")
	assert.Contains(t, string(out), "replicas: 2")
}
