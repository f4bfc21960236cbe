package documents

import (
	"errors"

	"github.com/archivum-dms/archivum/internal/shared"
)

// ErrFolderCycle is returned when a move would make a folder its own
// ancestor.
var ErrFolderCycle = errors.New("move would create a folder cycle")

// ignoreNotFound keeps missing rows out of the error channel for lookups
// where absence is an answer, not a failure.
func ignoreNotFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	return err
}
