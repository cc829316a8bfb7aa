package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchJob_Lifecycle(t *testing.T) {
	job := NewBatchJob("batch-1", "product", 5, func() {})

	assert.Equal(t, "processing", job.Status())
	status, completed, result := job.Snapshot()
	assert.Equal(t, "processing", status)
	assert.Zero(t, completed)
	assert.Nil(t, result)

	job.SetCompleted(3)
	job.Finish("partial", &BatchResult{Succeeded: 3, Failed: 2})

	status, completed, result = job.Snapshot()
	assert.Equal(t, "partial", status)
	assert.Equal(t, 3, completed)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Succeeded)
}

// Readers poll the job while the runner updates it, the way status
// handlers overlap a running batch.
func TestBatchJob_ConcurrentReadersAndWriter(t *testing.T) {
	job := NewBatchJob("batch-2", "article", 100, func() {})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 100; i++ {
			job.SetCompleted(i)
		}
		job.Finish("completed", &BatchResult{Succeeded: 100})
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				status, completed, result := job.Snapshot()
				assert.LessOrEqual(t, completed, 100)
				if status != "processing" {
					assert.NotNil(t, result)
				}
				_ = job.Status()
			}
		}()
	}
	wg.Wait()

	status, completed, result := job.Snapshot()
	assert.Equal(t, "completed", status)
	assert.Equal(t, 100, completed)
	require.NotNil(t, result)
}
