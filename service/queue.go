// service/queue.go
package service

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned when submitting to a stopped processor.
var ErrQueueClosed = errors.New("cast queue is closed")

// CastRequest is a queued cast-vote attempt.
type CastRequest struct {
	OTAC        string
	CandidateID string
	resultCh    chan castOutcome
}

type castOutcome struct {
	result *CastResult
	err    error
}

// QueueProcessor feeds cast requests to the voting service from a single
// worker goroutine, so callers that prefer queueing to direct locked
// calls still get one-at-a-time application.
type QueueProcessor struct {
	votingService *VotingService
	castCh        chan *CastRequest
	shutdownCh    chan struct{}
	processingWg  sync.WaitGroup
	stopOnce      sync.Once

	// mu and closed fence the enqueue against Stop: once closed is set
	// no request can enter castCh, so the worker's drain loop sees every
	// accepted request and every submitter gets exactly one outcome.
	mu     sync.RWMutex
	closed bool
}

// NewQueueProcessor creates a processor with the given queue depth.
func NewQueueProcessor(votingService *VotingService, queueSize int) *QueueProcessor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &QueueProcessor{
		votingService: votingService,
		castCh:        make(chan *CastRequest, queueSize),
		shutdownCh:    make(chan struct{}),
	}
}

// Start launches the cast worker.
func (qp *QueueProcessor) Start() {
	qp.processingWg.Add(1)
	go qp.castWorker()
}

// Stop shuts the worker down and waits for it to finish the in-flight
// request. Pending queued requests are failed with ErrQueueClosed.
func (qp *QueueProcessor) Stop() {
	qp.stopOnce.Do(func() {
		qp.mu.Lock()
		qp.closed = true
		qp.mu.Unlock()
		close(qp.shutdownCh)
	})
	qp.processingWg.Wait()
}

// Submit queues a cast and waits for its outcome. Cancellation applies
// only while the request is waiting to enter the queue: once accepted,
// the cast runs to completion and its real outcome is returned even if
// the processor is stopped in the meantime.
func (qp *QueueProcessor) Submit(ctx context.Context, otac, candidateID string) (*CastResult, error) {
	req := &CastRequest{
		OTAC:        otac,
		CandidateID: candidateID,
		resultCh:    make(chan castOutcome, 1),
	}
	// The read lock is held across the enqueue so Stop cannot set closed
	// and drain while a send is still in progress.
	qp.mu.RLock()
	if qp.closed {
		qp.mu.RUnlock()
		return nil, ErrQueueClosed
	}
	select {
	case qp.castCh <- req:
		qp.mu.RUnlock()
	case <-ctx.Done():
		qp.mu.RUnlock()
		return nil, ctx.Err()
	}
	// Every accepted request receives exactly one outcome: the worker
	// answers it directly, or the drain loop fails it with
	// ErrQueueClosed. An in-flight cast reports its applied result, not
	// a spurious closure error.
	outcome := <-req.resultCh
	return outcome.result, outcome.err
}

func (qp *QueueProcessor) castWorker() {
	defer qp.processingWg.Done()
	for {
		select {
		case req := <-qp.castCh:
			result, err := qp.votingService.CastVote(req.OTAC, req.CandidateID)
			req.resultCh <- castOutcome{result: result, err: err}
		case <-qp.shutdownCh:
			// Fail whatever is still queued so submitters are not left
			// hanging.
			for {
				select {
				case req := <-qp.castCh:
					req.resultCh <- castOutcome{err: ErrQueueClosed}
				default:
					return
				}
			}
		}
	}
}
