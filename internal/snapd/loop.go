package snapd

import (
	"sync"
)

// eventLoop runs posted tasks one at a time, in order, on a single goroutine.
// The task list is unbounded so code running on the loop can post to itself
// without blocking.
type eventLoop struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

func newEventLoop() *eventLoop {
	l := &eventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// post queues f to run on the loop. It returns false once the loop is stopped.
func (l *eventLoop) post(f func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *eventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			if l.stopped {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			<-l.wake
			continue
		}
		f := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		f()
	}
}

// stop refuses further posts, lets already queued tasks drain and waits for
// the loop goroutine to exit. It must not be called from the loop itself.
func (l *eventLoop) stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}
