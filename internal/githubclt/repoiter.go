package githubclt

import "context"

// RepositoryPager returns pages of the repositories of an owner.
type RepositoryPager interface {
	ListRepositories(ctx context.Context, owner, cursor string) (*RepositoryPage, error)
}

// RepositoryIterator iterates over all repositories of an owner, fetching one
// page at a time.
type RepositoryIterator struct {
	pager RepositoryPager

	ctx   context.Context
	owner string

	unseen []*Repository

	cursor   string
	finished bool
}

// NewRepositoryIterator returns an iterator for all repositories of owner.
func NewRepositoryIterator(ctx context.Context, pager RepositoryPager, owner string) *RepositoryIterator {
	return &RepositoryIterator{
		pager: pager,
		ctx:   ctx,
		owner: owner,
	}
}

// Next returns the next repository.
// When the last result was returned a nil Repository is returned.
func (it *RepositoryIterator) Next() (*Repository, error) {
	for len(it.unseen) == 0 {
		if it.finished {
			return nil, nil
		}

		page, err := it.pager.ListRepositories(it.ctx, it.owner, it.cursor)
		if err != nil {
			return nil, err
		}

		if !page.HasNextPage || len(page.Repositories) == 0 {
			it.finished = true
		} else {
			it.cursor = page.EndCursor
		}

		it.unseen = page.Repositories
	}

	result := it.unseen[0]
	it.unseen = it.unseen[1:]

	return result, nil
}
