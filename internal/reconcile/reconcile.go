// Package reconcile applies externally sourced changes to open documents.
//
// External changes win: a replace or tool write overwrites the content and
// the baseline of an open document, discarding unsaved local edits and any
// pending suggestion review.
package reconcile

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/document"
	"github.com/dshills/inkwell/internal/logging"
	"github.com/dshills/inkwell/internal/metrics"
)

// ErrReconciliationMiss indicates an event referenced a document that is
// not open.
var ErrReconciliationMiss = errors.New("no open document for event")

// ErrUnknownKind indicates an event kind the reconciler does not handle.
var ErrUnknownKind = errors.New("unknown event kind")

// Kind is the type of external change.
type Kind int

const (
	// KindReplace overwrites an open document with authoritative text.
	KindReplace Kind = iota
	// KindToolWrite is a write made by the assistant; it opens the document
	// if needed.
	KindToolWrite
	// KindDelete reports the backing file is gone.
	KindDelete
	// KindRename reports the backing file moved.
	KindRename
)

var kindNames = map[Kind]string{
	KindReplace:   "replace",
	KindToolWrite: "tool_write",
	KindDelete:    "delete",
	KindRename:    "rename",
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, text)
}

// Event is one external change, addressed by document id.
type Event struct {
	Kind Kind `json:"kind"`

	// ID is the affected document. For KindRename it is the old id.
	ID string `json:"id"`

	// NewID is the destination id for KindRename.
	NewID string `json:"newId,omitempty"`

	// Text is the new content for KindReplace and KindToolWrite.
	Text string `json:"text,omitempty"`
}

// Action is what the reconciler did with an event.
type Action int

const (
	// ActionApplied means an open document was updated.
	ActionApplied Action = iota
	// ActionCreated means a document was opened for a tool write.
	ActionCreated
	// ActionMissed means no open document matched.
	ActionMissed
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionApplied:
		return "applied"
	case ActionCreated:
		return "created"
	case ActionMissed:
		return "missed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Outcome reports the effect of an event.
type Outcome struct {
	Action   Action            `json:"action"`
	Document document.Document `json:"document"`
}

// Reconciler applies external events to a registry.
type Reconciler struct {
	reg     *document.Registry
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logging.Component(l, "reconcile")
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// New creates a reconciler for reg.
func New(reg *document.Registry, opts ...Option) *Reconciler {
	r := &Reconciler{reg: reg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry the reconciler updates.
func (r *Reconciler) Registry() *document.Registry {
	return r.reg
}

// Apply applies ev. A miss returns ActionMissed together with an error
// wrapping ErrReconciliationMiss; the registry is unchanged in that case.
func (r *Reconciler) Apply(ev Event) (Outcome, error) {
	ev.ID = document.NormalizeID(ev.ID)
	ev.NewID = document.NormalizeID(ev.NewID)

	out, err := r.apply(ev)

	outcome := out.Action.String()
	if err != nil && !errors.Is(err, ErrReconciliationMiss) {
		outcome = "error"
	}
	r.metrics.RecordReconcile(ev.Kind.String(), outcome)
	r.logger.Debug("external change",
		zap.Stringer("kind", ev.Kind),
		zap.String("id", ev.ID),
		zap.String("outcome", outcome),
	)
	return out, err
}

func (r *Reconciler) apply(ev Event) (Outcome, error) {
	switch ev.Kind {
	case KindReplace:
		doc, err := r.reg.Replace(ev.ID, ev.Text)
		if err != nil {
			return r.miss(ev, err)
		}
		return Outcome{Action: ActionApplied, Document: doc}, nil

	case KindToolWrite:
		if doc, err := r.reg.Replace(ev.ID, ev.Text); err == nil {
			return Outcome{Action: ActionApplied, Document: doc}, nil
		}
		doc, err := r.reg.Adopt(ev.ID, ev.Text)
		if errors.Is(err, document.ErrAlreadyOpen) {
			// Opened concurrently; fall back to replacing it.
			doc, err = r.reg.Replace(ev.ID, ev.Text)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Action: ActionApplied, Document: doc}, nil
		}
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Action: ActionCreated, Document: doc}, nil

	case KindDelete:
		doc, err := r.reg.MarkDeleted(ev.ID)
		if err != nil {
			return r.miss(ev, err)
		}
		r.forget(ev.ID)
		return Outcome{Action: ActionApplied, Document: doc}, nil

	case KindRename:
		doc, err := r.reg.Rename(ev.ID, ev.NewID)
		if err != nil {
			return r.miss(ev, err)
		}
		r.move(ev.ID, ev.NewID)
		return Outcome{Action: ActionApplied, Document: doc}, nil

	default:
		return Outcome{}, &document.Error{Op: "reconcile", ID: ev.ID, Err: ErrUnknownKind}
	}
}

// miss converts a not-open registry error into a reconciliation miss.
// Other errors pass through.
func (r *Reconciler) miss(ev Event, err error) (Outcome, error) {
	if errors.Is(err, document.ErrNotOpen) {
		return Outcome{Action: ActionMissed}, &document.Error{Op: ev.Kind.String(), ID: ev.ID, Err: ErrReconciliationMiss}
	}
	return Outcome{}, err
}

// formatTracker is implemented by stores that remember per-file formats.
type formatTracker interface {
	Forget(id string)
	Move(oldID, newID string)
}

func (r *Reconciler) forget(id string) {
	if ft, ok := r.reg.Store().(formatTracker); ok {
		ft.Forget(id)
	}
}

func (r *Reconciler) move(oldID, newID string) {
	if ft, ok := r.reg.Store().(formatTracker); ok {
		ft.Move(oldID, newID)
	}
}
