// Package lock serialises statistics runs per study, inside one process or across
// processes sharing a lock directory
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fieldtrial/domain/core"
	"fieldtrial/ports"

	"github.com/gofrs/flock"
)

// Local is an in-process StudyLocker. A slot lives only while someone holds or
// waits on it.
type Local struct {
	mu    sync.Mutex
	slots map[core.ID]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ ports.StudyLocker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{slots: make(map[core.ID]*slot)}
}

func (l *Local) acquire(id core.ID) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *Local) release(id core.ID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *Local) Lock(ctx context.Context, studyID core.ID) (func(), error) {
	s := l.acquire(studyID)
	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.release(studyID, s)
			})
		}, nil
	case <-ctx.Done():
		l.release(studyID, s)
		return nil, fmt.Errorf("%w: study %s: %w", core.ErrLocked, studyID, ctx.Err())
	}
}

// size reports the number of live slots
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// File adds a flock file per study on top of Local so that separate processes
// (CLI runs, API replicas on one host) do not interleave runs
type File struct {
	dir   string
	retry time.Duration
	local *Local
}

var _ ports.StudyLocker = (*File)(nil)

// NewFile creates dir if needed
func NewFile(dir string, retry time.Duration) (*File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &File{dir: dir, retry: retry, local: NewLocal()}, nil
}

// Path returns the lock file of a study
func (f *File) Path(studyID core.ID) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(studyID.String())
	return filepath.Join(f.dir, "study-"+name+".lock")
}

func (f *File) Lock(ctx context.Context, studyID core.ID) (func(), error) {
	unlockLocal, err := f.local.Lock(ctx, studyID)
	if err != nil {
		return nil, err
	}
	fl := flock.New(f.Path(studyID))
	ok, err := fl.TryLockContext(ctx, f.retry)
	if err != nil || !ok {
		unlockLocal()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: study %s: %w", core.ErrLocked, studyID, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = fl.Unlock()
			unlockLocal()
		})
	}, nil
}
