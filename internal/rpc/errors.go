package rpc

import (
	"errors"

	"github.com/creachadair/jrpc2"

	"github.com/dshills/inkwell/internal/autosave"
	"github.com/dshills/inkwell/internal/diff"
	"github.com/dshills/inkwell/internal/document"
	"github.com/dshills/inkwell/internal/reconcile"
)

// Application error codes. Invalid input uses jrpc2.InvalidParams.
const (
	CodeNotOpen            jrpc2.Code = -32001
	CodeOpenFailed         jrpc2.Code = -32002
	CodeSaveFailed         jrpc2.Code = -32003
	CodeInDiffMode         jrpc2.Code = -32004
	CodeNotInDiffMode      jrpc2.Code = -32005
	CodeDeleted            jrpc2.Code = -32006
	CodeAlreadyOpen        jrpc2.Code = -32007
	CodeReconciliationMiss jrpc2.Code = -32008
	CodeUnknownSurface     jrpc2.Code = -32009
)

// errUnknownSurface is returned for edits from a destroyed or unknown surface.
var errUnknownSurface = errors.New("unknown surface")

// errorCodes is checked in order; the first match wins.
var errorCodes = []struct {
	err  error
	code jrpc2.Code
}{
	{diff.ErrInvalidInput, jrpc2.InvalidParams},
	{document.ErrInvalidID, jrpc2.InvalidParams},
	{reconcile.ErrUnknownKind, jrpc2.InvalidParams},
	{autosave.ErrSaveFailed, CodeSaveFailed},
	{document.ErrOpenFailed, CodeOpenFailed},
	{document.ErrNotOpen, CodeNotOpen},
	{document.ErrInDiffMode, CodeInDiffMode},
	{document.ErrNotInDiffMode, CodeNotInDiffMode},
	{document.ErrDeleted, CodeDeleted},
	{document.ErrAlreadyOpen, CodeAlreadyOpen},
	{reconcile.ErrReconciliationMiss, CodeReconciliationMiss},
	{errUnknownSurface, CodeUnknownSurface},
}

// rpcError converts a domain error to a *jrpc2.Error.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	var jerr *jrpc2.Error
	if errors.As(err, &jerr) {
		return jerr
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return jrpc2.Errorf(ec.code, "%v", err)
		}
	}
	return jrpc2.Errorf(jrpc2.InternalError, "%v", err)
}

// invalidParams reports a malformed request.
func invalidParams(format string, args ...any) error {
	return jrpc2.Errorf(jrpc2.InvalidParams, format, args...)
}
