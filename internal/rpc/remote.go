package rpc

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/inkwell/internal/codec"
	"github.com/dshills/inkwell/internal/surface"
)

// surfaceNotice is the payload of surface notifications.
type surfaceNotice struct {
	Surface           string     `json:"surface"`
	ID                string     `json:"id,omitempty"`
	Doc               *codec.Doc `json:"doc,omitempty"`
	PreserveSelection bool       `json:"preserveSelection,omitempty"`
}

// remoteSurface is an editing surface that lives in the host. The core
// addresses it by a handle that stays valid across document renames.
type remoteSurface struct {
	srv      *Server
	handle   string
	onChange func(codec.Doc)

	mu  sync.Mutex
	doc codec.Doc
}

// SurfaceFactory returns a factory that creates host surfaces. The host
// is told to create the surface with surface.create and reports edits
// through the surface.changed method.
func (s *Server) SurfaceFactory() surface.Factory {
	return func(id string, initial codec.Doc, onChange func(codec.Doc)) surface.Surface {
		rs := &remoteSurface{
			srv:      s,
			handle:   uuid.NewString(),
			onChange: onChange,
			doc:      initial,
		}

		s.mu.Lock()
		s.surfaces[rs.handle] = rs
		s.mu.Unlock()

		s.push(NotifySurfaceCreate, surfaceNotice{Surface: rs.handle, ID: id, Doc: &initial})
		return rs
	}
}

func (r *remoteSurface) SetContent(doc codec.Doc, preserveSelection bool) {
	r.mu.Lock()
	r.doc = doc
	r.mu.Unlock()
	r.srv.push(NotifySurfaceSetContent, surfaceNotice{Surface: r.handle, Doc: &doc, PreserveSelection: preserveSelection})
}

func (r *remoteSurface) Content() codec.Doc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

func (r *remoteSurface) Destroy() {
	r.srv.mu.Lock()
	delete(r.srv.surfaces, r.handle)
	r.srv.mu.Unlock()
	r.srv.push(NotifySurfaceDestroy, surfaceNotice{Surface: r.handle})
}

// edited records a host edit and hands it to the binder.
func (r *remoteSurface) edited(doc codec.Doc) {
	r.mu.Lock()
	r.doc = doc
	r.mu.Unlock()
	r.onChange(doc)
}
