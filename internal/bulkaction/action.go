package bulkaction

import (
	"fmt"
	"strconv"
)

// Action is an operation that is applied to every repository of an owner.
type Action int

const (
	ActionStar Action = iota
	ActionWatch
	ActionEnableIssues
)

func (a Action) String() string {
	switch a {
	case ActionStar:
		return "star"
	case ActionWatch:
		return "watch"
	case ActionEnableIssues:
		return "enable_issues"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// mutation returns the aliased GraphQL mutation field that applies the action
// to the repository with the node ID repositoryID.
func (a Action) mutation(alias, repositoryID string) string {
	id := strconv.Quote(repositoryID)

	switch a {
	case ActionStar:
		return fmt.Sprintf("%s: addStar(input: {starrableId: %s}) { clientMutationId }", alias, id)
	case ActionWatch:
		return fmt.Sprintf("%s: updateSubscription(input: {subscribableId: %s, state: SUBSCRIBED}) { clientMutationId }", alias, id)
	case ActionEnableIssues:
		return fmt.Sprintf("%s: updateRepository(input: {repositoryId: %s, hasIssuesEnabled: true}) { clientMutationId }", alias, id)
	default:
		panic(fmt.Sprintf("unsupported action: %s", a))
	}
}
