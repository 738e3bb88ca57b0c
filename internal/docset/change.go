package docset

import (
	"fmt"

	"github.com/syntrixbase/syntrix-client/pkg/model"
)

// ChangeType is the kind of transition one document made between two sets.
type ChangeType int

const (
	// ChangeRemoved: the document left the result.
	ChangeRemoved ChangeType = iota
	// ChangeAdded: the document entered the result.
	ChangeAdded
	// ChangeModified: the document stayed but its content changed.
	ChangeModified
	// ChangeMetadata: only local metadata (pending-write status) changed.
	ChangeMetadata
)

func (t ChangeType) String() string {
	switch t {
	case ChangeRemoved:
		return "removed"
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(t))
	}
}

// DocumentChange pairs a document with its transition kind. For removals Doc
// is the last version that was in the set.
type DocumentChange struct {
	Type ChangeType
	Doc  *model.Document
}

func (c DocumentChange) Equal(other DocumentChange) bool {
	return c.Type == other.Type && c.Doc.Equal(other.Doc)
}

func (c DocumentChange) String() string {
	return fmt.Sprintf("%s %s", c.Type, c.Doc.Key())
}

// ChangesEqual compares two change lists element by element.
func ChangesEqual(a, b []DocumentChange) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
