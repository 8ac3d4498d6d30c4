package githubclt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"

	"github.com/simplesurance/forkpr/internal/logfields"
)

// RepositoryPageSize is the number of repositories requested per page.
const RepositoryPageSize = 100

// maxErrorBodyLen is the maximum number of bytes of an http response body that
// is included in an error.
const maxErrorBodyLen = 1024

// Repository is a repository returned by a repository listing.
type Repository struct {
	ID            string
	NameWithOwner string
	IsArchived    bool
}

// RepositoryPage is a page of a repository listing.
type RepositoryPage struct {
	Repositories []*Repository
	EndCursor    string
	HasNextPage  bool
}

// ListRepositories returns the page of repositories owned by owner that
// follows cursor. To retrieve the first page cursor must be empty.
func (clt *Client) ListRepositories(ctx context.Context, owner, cursor string) (*RepositoryPage, error) {
	var q struct {
		RepositoryOwner struct {
			Repositories struct {
				Nodes []struct {
					ID            githubv4.ID
					NameWithOwner githubv4.String
					IsArchived    githubv4.Boolean
				}
				PageInfo struct {
					EndCursor   githubv4.String
					HasNextPage githubv4.Boolean
				}
			} `graphql:"repositories(first: $pageSize, after: $cursor, ownerAffiliations: [OWNER], orderBy: {field: NAME, direction: ASC})"`
		} `graphql:"repositoryOwner(login: $owner)"`
	}

	vars := map[string]interface{}{
		"owner":    githubv4.String(owner),
		"pageSize": githubv4.Int(RepositoryPageSize),
		"cursor":   (*githubv4.String)(nil),
	}

	if cursor != "" {
		vars["cursor"] = githubv4.NewString(githubv4.String(cursor))
	}

	err := clt.graphQLClt.Query(ctx, &q, vars)
	if err != nil {
		return nil, clt.wrapGraphQLStatusErrors(err)
	}

	nodes := q.RepositoryOwner.Repositories.Nodes
	result := RepositoryPage{
		Repositories: make([]*Repository, 0, len(nodes)),
		EndCursor:    string(q.RepositoryOwner.Repositories.PageInfo.EndCursor),
		HasNextPage:  bool(q.RepositoryOwner.Repositories.PageInfo.HasNextPage),
	}

	for _, n := range nodes {
		result.Repositories = append(result.Repositories, &Repository{
			ID:            fmt.Sprint(n.ID),
			NameWithOwner: string(n.NameWithOwner),
			IsArchived:    bool(n.IsArchived),
		})
	}

	return &result, nil
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Mutate sends a GraphQL mutation document and returns an error if the
// request failed or the response contains errors.
// It is used for documents that contain a variable number of aliased
// mutations.
func (clt *Client) Mutate(ctx context.Context, document string) error {
	body, err := json.Marshal(&graphQLRequest{Query: document})
	if err != nil {
		return fmt.Errorf("marshalling graphql request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, clt.graphQLURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating http request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := clt.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading graphql response failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), maxErrorBodyLen)}
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return fmt.Errorf("unmarshalling graphql response failed: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		msgs := make([]string, 0, len(gqlResp.Errors))
		for _, e := range gqlResp.Errors {
			msgs = append(msgs, e.Message)
		}

		return &GraphQLError{Messages: msgs}
	}

	clt.logger.Debug(
		"graphql mutation succeeded",
		logfields.Event("github_graphql_mutation_succeeded"),
		zap.Int("response_size", len(respBody)),
	)

	return nil
}

// HTTPStatusError is returned when GitHub responded with a non-2xx status
// code.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("non-2xx status code: %d", e.StatusCode)
	}

	return fmt.Sprintf("non-2xx status code: %d, body: %s", e.StatusCode, e.Body)
}

// GraphQLError is returned when a GraphQL response contains errors.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql request failed: " + strings.Join(e.Messages, "; ")
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+)(?: [^\n]*body: "(.*)")?`)

// wrapGraphQLStatusErrors converts the http status errors returned by the
// githubv4 client to HTTPStatusError.
func (clt *Client) wrapGraphQLStatusErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 3 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	return &HTTPStatusError{StatusCode: errcode, Body: matches[2]}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	return s[:maxLen] + "..."
}
