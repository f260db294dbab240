package search

import (
	"sync"
)

// workerPool runs batches of tasks on a fixed set of goroutines until stopped.
type workerPool struct {
	size   int
	jobsCh chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup

	// mu is held for reading by every batch so stop waits for in-flight work.
	mu      sync.RWMutex
	running bool
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}

	p := &workerPool{
		size:    size,
		jobsCh:  make(chan func()),
		stopCh:  make(chan struct{}),
		running: true,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case job := <-p.jobsCh:
			job()
		}
	}
}

// parallelFor splits [0,n) into chunks, runs fn on each and returns the first error.
func (p *workerPool) parallelFor(n int, fn func(lo, hi int) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrTerminated
	}
	if n == 0 {
		return nil
	}

	chunks := p.size * 4
	if chunks > n {
		chunks = n
	}
	step := (n + chunks - 1) / chunks

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for lo := 0; lo < n; lo += step {
		hi := min(lo+step, n)
		wg.Add(1)
		job := func() {
			defer wg.Done()
			if err := fn(lo, hi); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}
		p.jobsCh <- job
	}
	wg.Wait()
	return firstErr
}

// stop waits for running batches and shuts the workers down.
func (p *workerPool) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
	p.wg.Wait()
}
