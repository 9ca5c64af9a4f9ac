package services

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStudentLocks_SerializesSameStudent(t *testing.T) {
	locks := newStudentLocks()
	id := uuid.New()

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(id)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, locks.size())
}

func TestStudentLocks_IndependentStudents(t *testing.T) {
	locks := newStudentLocks()
	a, b := uuid.New(), uuid.New()

	unlockA := locks.lock(a)
	// Would block forever if students shared a lock
	unlockB := locks.lock(b)
	assert.Equal(t, 2, locks.size())

	unlockB()
	unlockA()
	assert.Equal(t, 0, locks.size())
}
