// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ProcessingError) Unwrap() error { return e.Err }

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// ProgressFunc is called after each item is processed.
type ProgressFunc func()

// Workers resolves a configured worker count. Zero or less means NumCPU.
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Map processes items on at most workers goroutines and returns the results
// in input order. An item whose fn fails keeps its zero value and its error
// is collected under name(item). Once ctx is done no further item is started;
// items already running finish.
func Map[I any, T any](
	ctx context.Context,
	items []I,
	workers int,
	name func(I) string,
	fn func(context.Context, I) (T, error),
	onProgress ProgressFunc,
) ([]T, *ProcessingErrors) {
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]T, len(items))
	errs := &ProcessingErrors{}

	p := pool.New().WithMaxGoroutines(Workers(workers))
	for i, item := range items {
		p.Go(func() {
			defer func() {
				if onProgress != nil {
					onProgress()
				}
			}()

			// Check for cancellation before processing
			if err := ctx.Err(); err != nil {
				errs.Add(name(item), err)
				return
			}

			result, err := fn(ctx, item)
			if err != nil {
				errs.Add(name(item), err)
				return
			}
			results[i] = result
		})
	}
	p.Wait()

	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}

// ForEachFile is Map over plain paths.
func ForEachFile[T any](ctx context.Context, files []string, workers int, fn func(context.Context, string) (T, error), onProgress ProgressFunc) ([]T, *ProcessingErrors) {
	return Map(ctx, files, workers, func(p string) string { return p }, fn, onProgress)
}
