package support

import (
	"context"
	"errors"
	"sync"
)

var (
	errDisk    = errors.New("disk unavailable")
	errNetwork = errors.New("network unreachable")
)

type fakeAccount struct {
	mu    sync.Mutex
	acct  AccountContext
	err   error
	reads int
}

func (f *fakeAccount) Account(ctx context.Context) (AccountContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.acct, f.err
}

func (f *fakeAccount) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// fakeCollector answers call n (1-based) with fn(n, redact).
type fakeCollector struct {
	mu     sync.Mutex
	calls  int
	redact [][]string
	fn     func(call int, redact []string) (Handle, error)
	// gate, when set, blocks every collection until it is closed. started is
	// closed when the first collection reaches the gate.
	gate    chan struct{}
	started chan struct{}
}

func collectorReturning(h Handle, errs ...error) *fakeCollector {
	return &fakeCollector{fn: func(call int, _ []string) (Handle, error) {
		if call <= len(errs) && errs[call-1] != nil {
			return "", errs[call-1]
		}
		return h, nil
	}}
}

func (f *fakeCollector) CollectLog(ctx context.Context, redact []string) (Handle, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.redact = append(f.redact, redact)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		if call == 1 && f.started != nil {
			close(f.started)
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.fn(call, redact)
}

func (f *fakeCollector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sentReport struct {
	Email   string
	Message string
	Handle  Handle
}

// fakeSender fails the calls listed in errs (1-based) and records every call.
type fakeSender struct {
	mu    sync.Mutex
	calls []sentReport
	errs  []error
	// gate, when set, blocks every send until it is closed.
	gate chan struct{}
}

func (f *fakeSender) SendReport(ctx context.Context, email, message string, h Handle) error {
	f.mu.Lock()
	f.calls = append(f.calls, sentReport{Email: email, Message: message, Handle: h})
	n := len(f.calls)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= len(f.errs) {
		return f.errs[n-1]
	}
	return nil
}

func (f *fakeSender) Calls() []sentReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReport(nil), f.calls...)
}

// stateLog records transitions as an observer would see them.
type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) observe(s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) States() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}
