package forkprerr

import "strings"

type matcher struct {
	kind      Kind
	substring string
}

// taxonomy is evaluated in order, the first match wins.
var taxonomy = []matcher{
	{kind: KindNoCommitsBetween, substring: "no commits between"},
	{kind: KindPullRequestExists, substring: "a pull request already exists"},
	{kind: KindRepositoryArchived, substring: "repository was archived"},
	{kind: KindNoHistoryInCommon, substring: "no history in common"},
}

// Kinds returns the known kinds in the order they are matched, KindUnknown is
// not part of the result.
func Kinds() []Kind {
	result := make([]Kind, 0, len(taxonomy))
	for _, m := range taxonomy {
		result = append(result, m.kind)
	}

	return result
}

// KindOf returns the Kind of the first entry of the taxonomy whose substring
// is contained in msg. Matching is case-insensitive.
func KindOf(msg string) Kind {
	lmsg := strings.ToLower(msg)

	for _, m := range taxonomy {
		if strings.Contains(lmsg, m.substring) {
			return m.kind
		}
	}

	return KindUnknown
}

// Classify wraps err in a RemoteError for repository.
// If err is nil, nil is returned.
func Classify(repository string, err error) *RemoteError {
	if err == nil {
		return nil
	}

	return &RemoteError{
		Kind:       KindOf(err.Error()),
		Repository: repository,
		Err:        err,
	}
}
