package keel

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// reentrantMutex serializes all cache mutation across one container
// tree. It must be reentrant because a loader's load hook may trigger
// nested Resolve calls against the same tree while the outer resolution
// already holds the lock.
type reentrantMutex struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int
}

func (m *reentrantMutex) Lock() {
	id := goid()
	if m.owner.Load() == id {
		m.depth++

		return
	}

	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

func (m *reentrantMutex) Unlock() {
	if m.owner.Load() != goid() {
		panic("keel: reentrant mutex unlocked by non-owner goroutine")
	}

	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

// goid returns the current goroutine ID, parsed from the stack header.
// Used only to establish lock ownership for reentrancy.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, _ := strconv.ParseInt(idField, 10, 64)

	return id
}
