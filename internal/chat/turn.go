package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docchat-go/internal/session"
)

// State is the position of a Turn in its lifecycle.
type State int

const (
	StateInit State = iota
	StateStreaming
	StateDone
	StateError
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Delta is one increment of a streamed answer. The final Delta has Done set,
// and Err set when the turn failed.
type Delta struct {
	Reasoning string
	Content   string
	Done      bool
	Err       error
}

// Turn is one in-flight assistant response. It is created by
// Orchestrator.Send and finalised by Close, which also runs when the Deltas
// loop ends for any reason.
type Turn struct {
	orch     *Orchestrator
	session  *session.Session
	parent   context.Context
	log      *slog.Logger
	messages []*schema.Message
	opts     []model.Option
	started  time.Time

	mu        sync.Mutex
	state     State
	outcome   State
	err       error
	received  bool
	abandoned bool
	reasoning strings.Builder
	content   strings.Builder
	reader    *schema.StreamReader[*schema.Message]
	cancel    context.CancelFunc
	message   session.Message

	closeOnce sync.Once
}

// SessionID returns the id of the session the turn writes to.
func (t *Turn) SessionID() string { return t.session.ID() }

// State returns the current lifecycle state.
func (t *Turn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Outcome returns StateDone or StateError once the turn is finalised, and
// the current state before that.
func (t *Turn) Outcome() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateFinalized {
		return t.outcome
	}
	return t.state
}

// Err returns the error that ended the turn, or nil.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Message returns the assistant message written to the session. It is the
// zero Message until the turn is finalised.
func (t *Turn) Message() session.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

type recvResult struct {
	msg *schema.Message
	err error
}

// Deltas streams the response. Each yielded Delta carries only the new text
// of one upstream chunk; the last one has Done set. The sequence is
// single-use: ranging over it a second time yields nothing. Breaking out of
// the loop finalises the turn with whatever was received.
func (t *Turn) Deltas() iter.Seq[Delta] {
	return func(yield func(Delta) bool) {
		defer t.Close()

		ctx, ok := t.begin()
		if !ok {
			return
		}

		sr, err := t.orch.model.Stream(ctx, t.messages, t.opts...)
		if err != nil {
			err = fmt.Errorf("chat: stream failed: %w", err)
			t.fail(err)
			yield(Delta{Done: true, Err: err})
			return
		}
		t.mu.Lock()
		t.reader = sr
		t.mu.Unlock()

		results := make(chan recvResult)
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			for {
				msg, err := sr.Recv()
				select {
				case results <- recvResult{msg: msg, err: err}:
				case <-stop:
					return
				}
				if err != nil {
					return
				}
			}
		}()

		inactivity := t.orch.cfg.InactivityTimeout
		watchdog := time.NewTimer(inactivity)
		defer watchdog.Stop()

		for {
			select {
			case r := <-results:
				if ctx.Err() != nil {
					t.expire(ctx, yield)
					return
				}
				if errors.Is(r.err, io.EOF) {
					t.finish()
					yield(Delta{Done: true})
					return
				}
				if r.err != nil {
					err := fmt.Errorf("chat: stream receive error: %w", r.err)
					t.fail(err)
					yield(Delta{Done: true, Err: err})
					return
				}
				watchdog.Reset(inactivity)

				d, final := t.accumulate(r.msg)
				if d.Reasoning != "" || d.Content != "" {
					if !yield(d) {
						t.abandon()
						return
					}
				}
				if final {
					t.finish()
					yield(Delta{Done: true})
					return
				}

			case <-watchdog.C:
				err := fmt.Errorf("%w (%s)", ErrStreamInactive, inactivity)
				t.fail(err)
				yield(Delta{Done: true, Err: err})
				return

			case <-ctx.Done():
				t.expire(ctx, yield)
				return
			}
		}
	}
}

// expire ends a turn whose stream context is done. A cancelled caller
// abandons the turn; an exceeded total timeout fails it.
func (t *Turn) expire(ctx context.Context, yield func(Delta) bool) {
	if t.parent.Err() != nil {
		t.abandon()
		return
	}
	err := fmt.Errorf("chat: response exceeded %s: %w", t.orch.cfg.TotalTimeout, ctx.Err())
	t.fail(err)
	yield(Delta{Done: true, Err: err})
}

// begin moves INIT to STREAMING and arms the total timeout. It reports false
// when the turn was already started or closed.
func (t *Turn) begin() (context.Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateInit {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(t.parent, t.orch.cfg.TotalTimeout)
	t.cancel = cancel
	t.state = StateStreaming
	return ctx, true
}

// accumulate appends a chunk to the buffers and reports whether it carried
// a finish reason.
func (t *Turn) accumulate(msg *schema.Message) (Delta, bool) {
	if msg == nil {
		return Delta{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	d := Delta{Reasoning: msg.ReasoningContent, Content: msg.Content}
	if d.Reasoning != "" || d.Content != "" {
		t.received = true
	}
	t.reasoning.WriteString(d.Reasoning)
	t.content.WriteString(d.Content)
	return d, msg.ResponseMeta != nil && msg.ResponseMeta.FinishReason != ""
}

func (t *Turn) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateStreaming {
		t.state = StateDone
	}
}

func (t *Turn) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateStreaming {
		t.state = StateError
		t.err = err
	}
}

func (t *Turn) abandon() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.abandoned = true
}

// Close finalises the turn: it stops the upstream, writes the assistant
// message and releases the session. It is safe to call more than once and
// from any goroutine.
func (t *Turn) Close() {
	t.closeOnce.Do(t.finalize)
}

func (t *Turn) finalize() {
	t.mu.Lock()

	if t.cancel != nil {
		t.cancel()
	}
	if t.reader != nil {
		t.reader.Close()
	}

	switch t.state {
	case StateInit, StateStreaming:
		t.abandoned = true
		if t.received {
			t.state = StateDone
		} else {
			t.state = StateError
			t.err = ErrStreamAbandoned
		}
	}

	content := t.content.String()
	if t.state == StateError {
		content = annotate(content, t.err)
	}
	msg := session.Message{
		Role:      session.RoleAssistant,
		Content:   content,
		Reasoning: CleanReasoning(t.reasoning.String()),
		Timestamp: t.orch.now().UTC(),
	}
	t.message = msg
	t.outcome = t.state
	t.state = StateFinalized
	outcome := t.outcomeLabel()
	err := t.err
	t.mu.Unlock()

	t.session.Append(msg)
	t.session.Release()

	elapsed := t.orch.now().Sub(t.started)
	if t.orch.observer != nil {
		t.orch.observer.TurnFinished(outcome, elapsed)
	}

	attrs := []any{
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
		slog.Int("content_chars", len(msg.Content)),
		slog.Int("reasoning_chars", len(msg.Reasoning)),
	}
	if err != nil {
		t.log.Warn("chat: turn failed", append(attrs, slog.Any("error", err))...)
		return
	}
	t.log.Info("chat: turn finished", attrs...)
}

// outcomeLabel names the terminal outcome for metrics. The caller holds t.mu.
func (t *Turn) outcomeLabel() string {
	switch {
	case errors.Is(t.err, ErrStreamAbandoned):
		return "abandoned"
	case t.outcome == StateError:
		return "error"
	case t.abandoned:
		return "partial"
	default:
		return "done"
	}
}
