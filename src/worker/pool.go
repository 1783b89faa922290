package worker

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"galmuri-capture/src/api"
)

// Uploader sends one capture to the backend.
type Uploader interface {
	Capture(ctx context.Context, req api.CaptureRequest) (api.Item, error)
}

// ResultCallback is invoked on upload completion (from a worker goroutine).
type ResultCallback func(item api.Item, err error)

// Pool is a fixed-size upload worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	up      Uploader
	timeout time.Duration
	jobs    chan job
	wg      sync.WaitGroup
}

type job struct {
	ctx context.Context
	req api.CaptureRequest
	cb  ResultCallback
}

// New creates a worker pool. Size defaults to NumCPU when size<=0. Queue is 1 slot.
// Each upload is bounded by timeout when it is positive.
func New(up Uploader, size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{up: up, timeout: timeout, jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				p.run(j)
			}
		}()
	}
}

func (p *Pool) run(j job) {
	ctx := j.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	log.Printf("Worker: uploading capture (%d base64 bytes)", len(j.req.ImageData))
	item, err := p.up.Capture(ctx, j.req)
	if err != nil {
		log.Printf("Worker: upload failed: %v", err)
	} else {
		log.Printf("Worker: upload stored as item %s (ocr %s)", item.ID, item.OCRStatus)
	}
	if j.cb != nil {
		j.cb(item, err)
	}
}

// Submit enqueues an upload if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, req api.CaptureRequest, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, req: req, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
