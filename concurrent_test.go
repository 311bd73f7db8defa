package keel

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrent_AtMostOneLoadPerKey(t *testing.T) {
	var loads atomic.Int32

	root := newTestRoot(t, func(b *Builder) {
		RegisterCacheable[*testDatabase](b,
			func(ctx Context, c *Container) (*testDatabase, error) {
				loads.Add(1)
				time.Sleep(5 * time.Millisecond) // widen the race window

				return &testDatabase{id: int(loads.Load())}, nil
			},
			func(db *testDatabase, ctx Context) error { return nil },
		)
	})

	const workers = 32

	var (
		wg        sync.WaitGroup
		instances [workers]*testDatabase
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			db, err := ResolveContextless[*testDatabase](root)
			assert.NoError(t, err)
			instances[i] = db
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for i := 1; i < workers; i++ {
		assert.Same(t, instances[0], instances[i])
	}
}

func TestConcurrent_BranchesShareAncestorLoad(t *testing.T) {
	var loads atomic.Int32

	root := newTestRoot(t, func(b *Builder) {
		RegisterCacheable[*testDatabase](b,
			func(ctx Context, c *Container) (*testDatabase, error) {
				loads.Add(1)

				return &testDatabase{}, nil
			},
			func(db *testDatabase, ctx Context) error { return nil },
		)
		b.DeclareScope(scopeSession, func(b *Builder) {})
	})

	const workers = 16

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			branch, err := root.Branch(scopeSession, nil)
			assert.NoError(t, err)

			_, err = ResolveContextless[*testDatabase](branch)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}

func TestConcurrent_TeardownUnloadsExactlyOnce(t *testing.T) {
	var unloads atomic.Int32

	root := newTestRoot(t, func(b *Builder) {
		RegisterCacheable[*testDatabase](b,
			func(ctx Context, c *Container) (*testDatabase, error) {
				return &testDatabase{}, nil
			},
			func(db *testDatabase, ctx Context) error {
				unloads.Add(1)

				return nil
			},
		)
	})

	_, err := ResolveContextless[*testDatabase](root)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			assert.NoError(t, root.Close())
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), unloads.Load())
}

// A load hook resolving further features against the same tree must not
// deadlock: the tree lock is reentrant within one goroutine.
func TestConcurrent_ReentrantNestedResolution(t *testing.T) {
	root := newTestRoot(t, func(b *Builder) {
		RegisterCacheable[*testDatabase](b,
			func(ctx Context, c *Container) (*testDatabase, error) {
				return &testDatabase{id: 3}, nil
			},
			func(db *testDatabase, ctx Context) error { return nil },
		)
		RegisterCacheable[*testMailer](b,
			func(ctx Context, c *Container) (*testMailer, error) {
				db, err := ResolveContextless[*testDatabase](c)
				if err != nil {
					return nil, err
				}

				return &testMailer{db: db}, nil
			},
			func(m *testMailer, ctx Context) error { return nil },
		)
	})

	finished := make(chan *testMailer, 1)

	go func() {
		mailer, err := ResolveContextless[*testMailer](root)
		assert.NoError(t, err)
		finished <- mailer
	}()

	select {
	case mailer := <-finished:
		assert.Equal(t, 3, mailer.db.id)
	case <-time.After(2 * time.Second):
		t.Fatal("nested resolution deadlocked")
	}
}

func TestConcurrent_CyclicLoadFailsInsteadOfRecursing(t *testing.T) {
	root := newTestRoot(t, func(b *Builder) {
		RegisterCacheable[*testDatabase](b,
			func(ctx Context, c *Container) (*testDatabase, error) {
				// A feature that needs itself to load itself.
				return ResolveContextless[*testDatabase](c)
			},
			func(db *testDatabase, ctx Context) error { return nil },
		)
	})

	_, err := ResolveContextless[*testDatabase](root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoadingFailed)
}

func TestReentrantMutex_NestedLockUnlock(t *testing.T) {
	var m reentrantMutex

	m.Lock()
	m.Lock()
	m.Unlock()

	// Still held: another goroutine must block until the outer unlock.
	acquired := make(chan struct{})

	go func() {
		m.Lock()
		defer m.Unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("mutex acquired while still held")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("mutex never released")
	}
}
