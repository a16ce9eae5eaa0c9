package services

import "sync"

// Pool is a bounded worker pool. Each completion call owns one: tasks are
// submitted, run on at most `workers` goroutines, and Wait drains the queue
// and joins every worker before returning, so no goroutines outlive the
// call.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{tasks: make(chan func())}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit enqueues a task. It blocks while all workers are busy, which keeps
// the submission side bounded too.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Wait closes the queue and blocks until every submitted task has finished.
// The pool cannot be reused afterwards.
func (p *Pool) Wait() {
	close(p.tasks)
	p.wg.Wait()
}
