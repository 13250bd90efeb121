package queue

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"
)

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager runs HTTP handler jobs on a fixed pool of workers. A full queue
// applies backpressure to the accepting goroutine.
type RequestQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

func NewRequestQueueManager(queueSize int, maxWorkers int) *RequestQueueManager {
	if queueSize < 0 {
		queueSize = 0
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	manager := &RequestQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.MaxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			for job := range rqm.JobQueue {
				err := run(job.Fn)
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			log.Printf("[queue] worker %d stopped", workerID)
		}(i)
	}
	log.Printf("[queue] %d workers started", rqm.MaxWorkers)
}

// run turns a panicking job into an error so the worker survives and the waiting request
// still gets an answer.
func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[queue] job panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn()
}

func (rqm *RequestQueueManager) EnqueueJob(job Job) {
	rqm.JobQueue <- job
}

func (rqm *RequestQueueManager) Depth() int {
	return len(rqm.JobQueue)
}

func (rqm *RequestQueueManager) Shutdown() {
	rqm.closeOnce.Do(func() {
		close(rqm.JobQueue)
	})
	rqm.wg.Wait()
}
