package autosave

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// FlushResponse is delivered once for every accepted flush trigger.
type FlushResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ExitFlusher saves the active document when the host is about to exit.
//
// A one-shot latch absorbs duplicate triggers: while a flush is in flight
// further triggers are ignored and produce no response. The latch resets
// once the response has been delivered.
type ExitFlusher struct {
	sched   *Scheduler
	respond func(FlushResponse)

	mu       sync.Mutex
	inFlight bool
}

// NewExitFlusher creates a flusher that reports through respond.
func NewExitFlusher(s *Scheduler, respond func(FlushResponse)) *ExitFlusher {
	return &ExitFlusher{sched: s, respond: respond}
}

// Trigger flushes the active document and reports whether the trigger was
// accepted. It blocks until the response has been delivered.
func (f *ExitFlusher) Trigger(ctx context.Context) bool {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		f.sched.logger.Debug("flush already in flight, trigger ignored")
		return false
	}
	f.inFlight = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}()

	resp := FlushResponse{Success: true}
	if id := f.sched.reg.ActiveID(); id != "" {
		if err := f.sched.save(ctx, id, false); err != nil {
			resp = FlushResponse{Success: false, Error: err.Error()}
		}
	}

	f.sched.metrics.RecordFlush(resp.Success)
	f.sched.logger.Info("flushed before exit", zap.Bool("success", resp.Success))
	if f.respond != nil {
		f.respond(resp)
	}
	return true
}

// InFlight reports whether a flush is running.
func (f *ExitFlusher) InFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}
