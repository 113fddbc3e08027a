package listing

import (
	"context"
	"sort"
	"sync"

	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

// ItemError reports a batch item that could not be analyzed.
type ItemError struct {
	Index int
	Err   error
}

// BatchResult is the outcome of AnalyzeBatch. Responses[i] is nil exactly
// when Errors holds an entry for i.
type BatchResult struct {
	Responses []*magicparse.AnalyzeResponse
	Errors    []ItemError
}

// AnalyzeBatch analyzes many listings on a bounded worker pool. Results keep
// request order and every item sees the same knowledge-base snapshot. The
// progress callback, if set, is called once per finished item.
func (s *Service) AnalyzeBatch(ctx context.Context, reqs []magicparse.AnalyzeRequest, progress func()) (*BatchResult, error) {
	out := &BatchResult{Responses: make([]*magicparse.AnalyzeResponse, len(reqs))}
	if len(reqs) == 0 {
		return out, nil
	}

	snapshot := s.Knowledge()

	workChan := make(chan int, len(reqs))
	for i := range reqs {
		workChan <- i
	}
	close(workChan)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for w := 0; w < s.workers && w < len(reqs); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				if ctx.Err() != nil {
					return
				}
				idx := snapshot
				if reqs[i].UseKnowledgeBase != nil && !*reqs[i].UseKnowledgeBase {
					idx = nil
				}
				resp, err := s.analyze(ctx, reqs[i], idx)

				mu.Lock()
				if err != nil {
					out.Errors = append(out.Errors, ItemError{Index: i, Err: err})
				} else {
					out.Responses[i] = resp
				}
				mu.Unlock()
				if progress != nil {
					progress()
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}
	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Index < out.Errors[j].Index })
	return out, nil
}
