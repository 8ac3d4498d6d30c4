// Package forkprerr provides the typed error for rejected remote operations
// and the classification of remote error messages into known skip reasons.
package forkprerr

import "fmt"

// Kind is the machine-readable category of a remote error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoCommitsBetween
	KindPullRequestExists
	KindRepositoryArchived
	KindNoHistoryInCommon
)

func (k Kind) String() string {
	switch k {
	case KindNoCommitsBetween:
		return "No commits between"
	case KindPullRequestExists:
		return "A pull request already exists"
	case KindRepositoryArchived:
		return "Repository was archived"
	case KindNoHistoryInCommon:
		return "No history in common"
	case KindUnknown:
		return "Unknown Reason"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// RemoteError is an error returned by GitHub for an operation on a
// repository, together with the classified Kind.
type RemoteError struct {
	Kind Kind
	// Repository identifies the repository the operation was run for.
	Repository string
	// Err is the wrapped original error
	Err error
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Repository, e.Err)
}

// Message returns the original error message.
func (e *RemoteError) Message() string {
	if e.Err == nil {
		return ""
	}

	return e.Err.Error()
}

// Detail returns "repository, message".
// It is used for errors of KindUnknown that have to be reported in full.
func (e *RemoteError) Detail() string {
	return e.Repository + ", " + e.Message()
}
