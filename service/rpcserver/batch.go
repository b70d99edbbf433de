package rpcserver

import (
	"context"
	"encoding/json"
	"sync"
)

// requestHandler answers one request of a message. The returned callback,
// if any, runs once the response has been written to the client.
type requestHandler func(ctx context.Context, raw json.RawMessage) (*response, func())

// BatchProcessor runs every request of a batch concurrently
// and collects the responses in request order
type BatchProcessor struct {
	handler    requestHandler
	requests   []json.RawMessage
	responses  []*response
	afterWrite []func()
}

func NewBatchProcessor(handler requestHandler, requests []json.RawMessage) *BatchProcessor {
	return &BatchProcessor{
		handler:    handler,
		requests:   requests,
		responses:  make([]*response, len(requests)),
		afterWrite: make([]func(), len(requests)),
	}
}

// Process handles every request and returns the responses in request order,
// notifications have no response and are left out
func (bp *BatchProcessor) Process(ctx context.Context) ([]*response, []func()) {
	var wg sync.WaitGroup
	for i, raw := range bp.requests {
		wg.Add(1)

		go func(idx int, raw json.RawMessage) {
			defer wg.Done()
			// each goroutine owns its own index
			bp.responses[idx], bp.afterWrite[idx] = bp.handler(ctx, raw)
		}(i, raw)
	}

	wg.Wait()

	responses := make([]*response, 0, len(bp.responses))
	for _, res := range bp.responses {
		if res != nil {
			responses = append(responses, res)
		}
	}

	callbacks := make([]func(), 0, len(bp.afterWrite))
	for _, callback := range bp.afterWrite {
		if callback != nil {
			callbacks = append(callbacks, callback)
		}
	}

	return responses, callbacks
}
