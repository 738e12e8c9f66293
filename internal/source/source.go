// Package source reads checkout metadata for labeling runs and artifact
// bundles. Checkout itself happens before the pipeline is invoked; this
// package only inspects what is already on disk.
package source

import (
	"fmt"

	"github.com/go-git/go-git/v5"
)

// Info identifies the source revision a pipeline run validated.
type Info struct {
	Revision string // full commit SHA of HEAD
	Branch   string // short branch name, empty on detached HEAD
}

// Short returns the abbreviated revision for display.
func (i Info) Short() string {
	if len(i.Revision) > 7 {
		return i.Revision[:7]
	}
	return i.Revision
}

// Describe reads HEAD of the repository at path. Callers degrade gracefully
// on error: an unlabeled run is preferable to a blocked one.
func Describe(path string) (Info, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Info{}, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		return Info{}, fmt.Errorf("reading HEAD: %w", err)
	}

	info := Info{Revision: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info, nil
}
