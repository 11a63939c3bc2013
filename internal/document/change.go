package document

// ChangeKind identifies what happened to a document.
type ChangeKind int

const (
	// ChangeOpened is sent when a document joins the registry.
	ChangeOpened ChangeKind = iota
	// ChangeClosed is sent when a document leaves the registry.
	ChangeClosed
	// ChangeEdited is sent when content changes through the editor.
	ChangeEdited
	// ChangeReplaced is sent when content and baseline are overwritten from
	// outside.
	ChangeReplaced
	// ChangeSaved is sent when a new baseline was persisted.
	ChangeSaved
	// ChangeDeleted is sent when the backing file disappears.
	ChangeDeleted
	// ChangeRenamed is sent when the document id changes.
	ChangeRenamed
	// ChangeReviewStarted is sent when a suggestion review begins.
	ChangeReviewStarted
	// ChangeAccepted is sent when a suggestion is accepted.
	ChangeAccepted
	// ChangeRejected is sent when a suggestion is rejected.
	ChangeRejected
	// ChangeActivated is sent when the active document changes.
	ChangeActivated
)

var changeKindNames = [...]string{
	ChangeOpened:        "opened",
	ChangeClosed:        "closed",
	ChangeEdited:        "edited",
	ChangeReplaced:      "replaced",
	ChangeSaved:         "saved",
	ChangeDeleted:       "deleted",
	ChangeRenamed:       "renamed",
	ChangeReviewStarted: "review_started",
	ChangeAccepted:      "accepted",
	ChangeRejected:      "rejected",
	ChangeActivated:     "activated",
}

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	if k >= 0 && int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Change describes one registry mutation.
type Change struct {
	Kind ChangeKind `json:"kind"`

	// ID is the document id after the change. Empty for ChangeActivated
	// when no document is active.
	ID string `json:"id"`

	// OldID is the previous id for ChangeRenamed.
	OldID string `json:"oldId,omitempty"`

	// Document is the snapshot after the change. For ChangeClosed it is
	// the last snapshot before removal.
	Document Document `json:"document"`
}
