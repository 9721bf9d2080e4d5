package uploads

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueStartsImmediatelyUnderLimit(t *testing.T) {
	q := NewQueue(2)

	started := make(chan string, 2)
	pos := q.Enqueue("a", func() { started <- "a" })
	require.Equal(t, 0, pos)
	pos = q.Enqueue("b", func() { started <- "b" })
	require.Equal(t, 0, pos)

	// Start order between two free slots is unspecified.
	got := []string{<-started, <-started}
	require.ElementsMatch(t, []string{"a", "b"}, got)
	require.Equal(t, 2, q.ActiveCount())
}

func TestQueueBoundsConcurrency(t *testing.T) {
	q := NewQueue(1)

	release := make(chan struct{})
	firstRunning := make(chan struct{})
	var secondStarted sync.WaitGroup
	secondStarted.Add(1)

	q.Enqueue("first", func() {
		close(firstRunning)
		<-release
		q.MarkComplete("first")
	})
	<-firstRunning

	pos := q.Enqueue("second", func() {
		secondStarted.Done()
		q.MarkComplete("second")
	})
	require.Equal(t, 1, pos)
	require.Equal(t, 1, q.PendingCount())

	secondPos := q.Position("second")
	require.NotNil(t, secondPos)
	require.Equal(t, 1, *secondPos)
	require.Nil(t, q.Position("first"))

	// Completing the first transfer promotes the second.
	close(release)
	secondStarted.Wait()

	require.Eventually(t, func() bool {
		return q.ActiveCount() == 0 && q.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestQueueMinimumConcurrency(t *testing.T) {
	q := NewQueue(0)
	require.Equal(t, 1, q.maxConcurrent)
}
