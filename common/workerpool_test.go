package common

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool(t *testing.T) {
	pool := NewWorkerPool(4, 8)
	var done int32
	for i := 0; i < 20; i++ {
		err := pool.Submit(func() {
			atomic.AddInt32(&done, 1)
		})
		assert.Nil(t, err)
	}
	pool.Wait()
	assert.Equal(t, int32(20), atomic.LoadInt32(&done))
	assert.Equal(t, uint64(0), pool.Pending())

	pool.StopWait()
	err := pool.Submit(func() {})
	assert.Equal(t, ErrorStopped, err)
}
