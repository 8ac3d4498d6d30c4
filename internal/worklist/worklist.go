// Package worklist loads the sections of worklist files into a single ordered
// list of work items.
//
// A worklist file is a section based key/value document:
//
//	[submodule "Packages/Widgets"]
//		url = https://github.com/forks/widgets
//		upstream = https://github.com/acme/widgets.git
//		branches = master->main,
//
// Tabs are removed before parsing.
package worklist

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

// ConfigParseError is returned when a worklist file can not be read or parsed.
type ConfigParseError struct {
	File string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("parsing worklist file %s failed: %s", e.File, e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}

// Worklist is the ordered sequence of work items of one or more files.
type Worklist struct {
	Items []*WorkItem
	Files []string
}

// Len returns the total number of work items.
func (w *Worklist) Len() int {
	return len(w.Items)
}

// FileLen returns the number of items that belong to file.
func (w *Worklist) FileLen(file string) int {
	var cnt int

	for _, it := range w.Items {
		if it.File == file {
			cnt++
		}
	}

	return cnt
}

// Load reads and parses all files, in order.
// If one or more files can not be loaded, an error containing a
// *ConfigParseError per failed file is returned and no worklist.
func Load(fs afero.Fs, files []string) (*Worklist, error) {
	var errs *multierror.Error

	result := Worklist{Files: files}

	for _, file := range files {
		items, err := loadFile(fs, file)
		if err != nil {
			errs = multierror.Append(errs, &ConfigParseError{File: file, Err: err})
			continue
		}

		result.Items = append(result.Items, items...)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return &result, nil
}

func loadFile(fs afero.Fs, file string) ([]*WorkItem, error) {
	content, err := afero.ReadFile(fs, file)
	if err != nil {
		return nil, err
	}

	content = bytes.ReplaceAll(content, []byte("\t"), nil)

	// non-unique sections are allowed to detect duplicates, ini merges
	// them otherwise
	doc, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:    true,
		KeyValueDelimiters:     "=:",
		AllowNonUniqueSections: true,
	}, content)
	if err != nil {
		return nil, err
	}

	var result []*WorkItem
	seen := map[string]struct{}{}

	for _, section := range doc.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}

		if _, exists := seen[section.Name()]; exists {
			return nil, fmt.Errorf("section %q is defined multiple times", section.Name())
		}
		seen[section.Name()] = struct{}{}

		result = append(result, newWorkItem(
			file,
			len(result)+1,
			section.Name(),
			section.Key(KeyDownstreamURL).String(),
			section.Key(KeyUpstreamURL).String(),
			section.Key(KeyBranches).String(),
		))
	}

	return result, nil
}
