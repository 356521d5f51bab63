package tools

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/tripmesh-ai/tripmesh/core"
)

// WorkerPool is a fixed-size pool executing submitted closures. Tool
// calls from every concurrent request funnel through one pool so the
// process has a hard ceiling on in-flight tool work.
type WorkerPool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	logger core.Logger

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool starts size workers. The submission queue holds one
// pending task per worker; beyond that Submit blocks up to its timeout.
func NewWorkerPool(size int, logger core.Logger) *WorkerPool {
	if size <= 0 {
		size = 12
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	p := &WorkerPool{
		tasks:  make(chan func(), size),
		logger: logger,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for fn := range p.tasks {
		p.runProtected(id, fn)
	}
}

func (p *WorkerPool) runProtected(id int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker recovered from panic", map[string]interface{}{
				"operation":   "pool_worker",
				"worker_id":   id,
				"panic":       core.PanicToError(r).Error(),
				"stack_trace": string(debug.Stack()),
			})
		}
	}()
	fn()
}

// Submit queues fn for execution, waiting at most timeout for queue
// space. A false return means the submission timed out.
func (p *WorkerPool) Submit(fn func(), timeout time.Duration) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.tasks <- fn:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting work and waits for in-flight tasks to finish.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
}
