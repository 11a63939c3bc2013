package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/creachadair/jrpc2"

	"github.com/dshills/inkwell/internal/codec"
	"github.com/dshills/inkwell/internal/diff"
	"github.com/dshills/inkwell/internal/document"
	"github.com/dshills/inkwell/internal/reconcile"
	"github.com/dshills/inkwell/internal/review"
)

type idParams struct {
	ID string `json:"id"`
}

type updateParams struct {
	ID   string          `json:"id"`
	Text *string         `json:"text"`
	Doc  json.RawMessage `json:"doc"`
}

type startReviewParams struct {
	ID        string  `json:"id"`
	Suggested *string `json:"suggested"`
}

type scrollParams struct {
	ID    string    `json:"id"`
	Side  diff.Side `json:"side"`
	Ratio float64   `json:"ratio"`
}

type diffParams struct {
	Original *string `json:"original"`
	Current  *string `json:"current"`
}

type eventParams struct {
	Kind  *reconcile.Kind `json:"kind"`
	ID    string          `json:"id"`
	NewID string          `json:"newId"`
	Text  *string         `json:"text"`
}

type surfaceChangedParams struct {
	Surface string          `json:"surface"`
	Doc     json.RawMessage `json:"doc"`
}

type listResult struct {
	Documents []document.Document `json:"documents"`
	ActiveID  string              `json:"activeId"`
}

type setActiveResult struct {
	Active bool `json:"active"`
}

type diffResult struct {
	Spans       []diff.Span      `json:"spans"`
	Decorations diff.Decorations `json:"decorations"`
	Stats       diff.Stats       `json:"stats"`
}

type scrollResult struct {
	Mirrored bool `json:"mirrored"`
}

type scrollNotice struct {
	ID    string    `json:"id"`
	Side  diff.Side `json:"side"`
	Ratio float64   `json:"ratio"`
}

// decode unmarshals required request parameters.
func decode(req *jrpc2.Request, v any) error {
	if !req.HasParams() {
		return invalidParams("missing parameters")
	}
	if err := req.UnmarshalParams(v); err != nil {
		return invalidParams("invalid parameters: %v", err)
	}
	return nil
}

// decodeID reads an {"id": ...} request and normalizes the id.
func decodeID(req *jrpc2.Request) (string, error) {
	var p idParams
	if err := decode(req, &p); err != nil {
		return "", err
	}
	return requireID(p.ID)
}

func requireID(id string) (string, error) {
	id = document.NormalizeID(id)
	if id == "" {
		return "", invalidParams("missing document id")
	}
	return id, nil
}

func (s *Server) get(op, id string) (document.Document, error) {
	doc, ok := s.reg.Get(id)
	if !ok {
		return document.Document{}, &document.Error{Op: op, ID: id, Err: document.ErrNotOpen}
	}
	return doc, nil
}

func (s *Server) openDocument(ctx context.Context, req *jrpc2.Request) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	return s.reg.Open(ctx, id)
}

func (s *Server) newDocument(ctx context.Context, req *jrpc2.Request) (any, error) {
	return s.reg.NewUntitled(), nil
}

// updateDocument accepts plain text or a surface document.
func (s *Server) updateDocument(ctx context.Context, req *jrpc2.Request) (any, error) {
	var p updateParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	id, err := requireID(p.ID)
	if err != nil {
		return nil, err
	}

	var text string
	switch {
	case p.Text != nil:
		text = *p.Text
	case len(p.Doc) > 0 && string(p.Doc) != "null":
		doc, err := codec.ParseJSON(p.Doc)
		if err != nil {
			return nil, invalidParams("invalid doc: %v", err)
		}
		text = codec.ToText(doc)
	default:
		return nil, invalidParams("one of text or doc is required")
	}

	if err := s.reg.UpdateContent(id, text); err != nil {
		return nil, err
	}
	return s.get("update", id)
}

func (s *Server) closeDocument(ctx context.Context, req *jrpc2.Request) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	return nil, s.reg.Close(id)
}

func (s *Server) setActive(ctx context.Context, req *jrpc2.Request) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	return setActiveResult{Active: s.reg.SetActive(id)}, nil
}

func (s *Server) getDocument(ctx context.Context, req *jrpc2.Request) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	return s.get("get", id)
}

func (s *Server) listDocuments(ctx context.Context, req *jrpc2.Request) (any, error) {
	return listResult{Documents: s.reg.List(), ActiveID: s.reg.ActiveID()}, nil
}

func (s *Server) stats(ctx context.Context, req *jrpc2.Request) (any, error) {
	return s.reg.Stats(), nil
}

// saveDocument saves now and returns the resulting save state.
func (s *Server) saveDocument(ctx context.Context, req *jrpc2.Request) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	if err := s.sched.Save(ctx, id); err != nil {
		return nil, err
	}
	state, _ := s.sched.State(id)
	return state, nil
}

func (s *Server) saveAll(ctx context.Context, req *jrpc2.Request) (any, error) {
	return nil, s.sched.SaveAll(ctx)
}

func (s *Server) saveState(ctx context.Context, req *jrpc2.Request) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.get("state", id); err != nil {
		return nil, err
	}
	state, _ := s.sched.State(id)
	return state, nil
}

func (s *Server) startReview(ctx context.Context, req *jrpc2.Request) (any, error) {
	var p startReviewParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	id, err := requireID(p.ID)
	if err != nil {
		return nil, err
	}
	if p.Suggested == nil {
		return nil, &document.Error{Op: "review", ID: id, Err: diff.ErrInvalidInput}
	}
	if err := s.reg.StartDiffReview(id, *p.Suggested); err != nil {
		return nil, err
	}
	doc, err := s.get("review", id)
	if err != nil {
		return nil, err
	}
	return review.Build(doc)
}

func (s *Server) reviewView(ctx context.Context, req *jrpc2.Request) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	doc, err := s.get("review", id)
	if err != nil {
		return nil, err
	}
	return review.Build(doc)
}

func (s *Server) acceptSuggestion(ctx context.Context, req *jrpc2.Request) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	if err := s.reg.AcceptSuggestion(id); err != nil {
		return nil, err
	}
	return s.get("accept", id)
}

func (s *Server) rejectSuggestion(ctx context.Context, req *jrpc2.Request) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	if err := s.reg.RejectSuggestion(id); err != nil {
		return nil, err
	}
	return s.get("reject", id)
}

// scroll mirrors a pane scroll to the other pane of a review.
func (s *Server) scroll(ctx context.Context, req *jrpc2.Request) (any, error) {
	var p scrollParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	id, err := requireID(p.ID)
	if err != nil {
		return nil, err
	}
	doc, err := s.get("scroll", id)
	if err != nil {
		return nil, err
	}
	if !doc.InReview() {
		return nil, &document.Error{Op: "scroll", ID: id, Err: document.ErrNotInDiffMode}
	}
	return scrollResult{Mirrored: s.syncer(id).Scrolled(p.Side, p.Ratio)}, nil
}

func (s *Server) computeDiff(ctx context.Context, req *jrpc2.Request) (any, error) {
	var p diffParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if p.Original == nil || p.Current == nil {
		return nil, diff.ErrInvalidInput
	}
	res, err := diff.Compute(*p.Original, *p.Current)
	if err != nil {
		return nil, err
	}
	return diffResult{Spans: res.Spans, Decorations: res.Decorations(), Stats: res.Stats()}, nil
}

// applyEvent applies an external change. Misses are reported in the
// outcome, not as errors.
func (s *Server) applyEvent(ctx context.Context, req *jrpc2.Request) (any, error) {
	var p eventParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if p.Kind == nil {
		return nil, invalidParams("missing event kind")
	}
	if _, err := requireID(p.ID); err != nil {
		return nil, err
	}

	ev := reconcile.Event{Kind: *p.Kind, ID: p.ID, NewID: p.NewID}
	switch ev.Kind {
	case reconcile.KindReplace, reconcile.KindToolWrite:
		if p.Text == nil {
			return nil, &document.Error{Op: "reconcile", ID: p.ID, Err: diff.ErrInvalidInput}
		}
		ev.Text = *p.Text
	case reconcile.KindRename:
		if _, err := requireID(p.NewID); err != nil {
			return nil, err
		}
	}

	out, err := s.rec.Apply(ev)
	if err != nil && !errors.Is(err, reconcile.ErrReconciliationMiss) {
		return nil, err
	}
	return out, nil
}

// surfaceChanged delivers a user edit from a host surface.
func (s *Server) surfaceChanged(ctx context.Context, req *jrpc2.Request) (any, error) {
	var p surfaceChangedParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	doc, err := codec.ParseJSON(p.Doc)
	if err != nil {
		return nil, invalidParams("invalid doc: %v", err)
	}

	s.mu.Lock()
	rs, ok := s.surfaces[p.Surface]
	s.mu.Unlock()
	if !ok {
		return nil, errUnknownSurface
	}
	rs.edited(doc)
	return nil, nil
}

// flushBeforeExit saves the active document. The result is pushed as
// app.flushed.
func (s *Server) flushBeforeExit(ctx context.Context, req *jrpc2.Request) (any, error) {
	s.flusher.Trigger(ctx)
	return nil, nil
}
