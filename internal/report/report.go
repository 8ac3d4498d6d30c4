// Package report accumulates the outcomes of a batch run and prints them.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/simplesurance/forkpr/internal/forkprerr"
)

// Category is an outcome of processing a work item.
type Category string

const (
	CategorySuccess         Category = "Successfully Created"
	CategoryUnknown         Category = "Unknown Reason"
	CategoryMissingUpstream Category = "Skipped — missing upstream"
	CategoryInvalidBranches Category = "Skipped — invalid branches"
)

// CategoryOf returns the report category for errors of the kind.
func CategoryOf(kind forkprerr.Kind) Category {
	if kind == forkprerr.KindUnknown {
		return CategoryUnknown
	}

	return Category(kind.String())
}

// Categories returns all categories in the order they are reported.
func Categories() []Category {
	kinds := forkprerr.Kinds()
	result := make([]Category, 0, len(kinds)+4)

	for _, k := range kinds {
		result = append(result, CategoryOf(k))
	}

	return append(result,
		CategoryUnknown,
		CategorySuccess,
		CategoryMissingUpstream,
		CategoryInvalidBranches,
	)
}

// Report is the result of a batch run.
// It maps outcome categories to the identifiers of the affected items and
// records which downstream repositories were touched.
type Report struct {
	entries map[Category][]string
	// touched contains the downstream repositories, keys are the
	// lowercased names
	touched map[string]string
}

func New() *Report {
	return &Report{
		entries: map[Category][]string{},
		touched: map[string]string{},
	}
}

// Add appends id to the entries of the category.
func (r *Report) Add(category Category, id string) {
	r.entries[category] = append(r.entries[category], id)
}

// AddError records a classified remote error.
// Errors of KindUnknown are recorded with their full message.
func (r *Report) AddError(err *forkprerr.RemoteError) Category {
	category := CategoryOf(err.Kind)

	if err.Kind == forkprerr.KindUnknown {
		r.Add(category, err.Detail())
	} else {
		r.Add(category, err.Repository)
	}

	return category
}

// Entries returns the entries of a category in the order they were added.
func (r *Report) Entries(category Category) []string {
	return r.entries[category]
}

// Len returns the number of entries in all categories.
func (r *Report) Len() int {
	var result int

	for _, e := range r.entries {
		result += len(e)
	}

	return result
}

// Touch records that the downstream repository owner/repo was processed.
func (r *Report) Touch(owner, repo string) {
	name := owner + "/" + repo
	r.touched[strings.ToLower(name)] = name
}

// Touched returns the sorted names of touched repositories.
func (r *Report) Touched() []string {
	result := make([]string, 0, len(r.touched))

	for _, name := range r.touched {
		result = append(result, name)
	}

	sort.Strings(result)

	return result
}

// TouchedOwners returns the sorted, deduplicated owners of the touched
// repositories.
func (r *Report) TouchedOwners() []string {
	owners := map[string]string{}

	for _, name := range r.touched {
		owner, _, _ := strings.Cut(name, "/")
		owners[strings.ToLower(owner)] = owner
	}

	result := make([]string, 0, len(owners))
	for _, owner := range owners {
		result = append(result, owner)
	}

	sort.Strings(result)

	return result
}

// Print writes the report in human-readable form to w.
func (r *Report) Print(w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("Repositories results:\n")

	for _, category := range Categories() {
		sb.WriteString("\n   ")
		sb.WriteString(string(category))
		sb.WriteString("\n")

		writeList(&sb, r.entries[category])
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeList(sb *strings.Builder, entries []string) {
	if len(entries) == 0 {
		sb.WriteString("        No results.\n")
		return
	}

	for i, e := range entries {
		fmt.Fprintf(sb, "        %d. %s\n", i+1, e)
	}
}
