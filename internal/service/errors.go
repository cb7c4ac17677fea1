package service

import (
	"errors"

	"github.com/freeholdgames/stellar-dominion/internal/repository"
)

// isConflict reports whether a repository error is a guarded-state conflict.
func isConflict(err error) bool {
	return errors.Is(err, repository.ErrStateConflict)
}

// isInsufficient reports whether a repository error is a failed resource
// guard.
func isInsufficient(err error) bool {
	return errors.Is(err, repository.ErrInsufficientResources)
}
