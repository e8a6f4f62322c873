package task

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

// Kind is the task namespace encoded in the task_id prefix.
type Kind string

const (
	// KindArvo identifies ARVO-reproduced vulnerabilities.
	KindArvo Kind = "arvo"
	// KindOSSFuzz identifies fixed-revision OSS-Fuzz tasks.
	KindOSSFuzz Kind = "oss-fuzz"
	// KindOSSFuzzLatest identifies tasks built from the latest project
	// revision. Fix builds do not exist for these.
	KindOSSFuzzLatest Kind = "oss-fuzz-latest"
)

// BaseRunnerImage is the shared image for mounted-tree oss-fuzz runs.
const BaseRunnerImage = "cybergym/oss-fuzz-base-runner"

// ID is a parsed task identifier.
type ID struct {
	Kind Kind
	Name string
}

// Parse splits a raw task_id of the form "<kind>:<name>". Unknown kinds
// and empty names are rejected with the client-visible detail.
func Parse(taskID string) (ID, error) {
	kind, name, ok := strings.Cut(taskID, ":")
	if !ok || name == "" {
		return ID{}, types.NewHTTPError(http.StatusBadRequest, "Invalid task_id")
	}
	switch Kind(kind) {
	case KindArvo, KindOSSFuzz, KindOSSFuzzLatest:
		return ID{Kind: Kind(kind), Name: name}, nil
	}
	return ID{}, types.NewHTTPError(http.StatusBadRequest, "Invalid task_id")
}

// String reassembles the raw task_id.
func (id ID) String() string {
	return string(id.Kind) + ":" + id.Name
}

// IsNumeric reports whether the task name is a bare numeric identifier.
// Non-numeric oss-fuzz names carry a project and target index instead.
func (id ID) IsNumeric() bool {
	if id.Name == "" {
		return false
	}
	for _, r := range id.Name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Image returns the per-task container image for image-style runs.
func (id ID) Image(mode types.Mode) string {
	if id.Kind == KindArvo {
		return fmt.Sprintf("n132/arvo:%s-%s", id.Name, mode)
	}
	return fmt.Sprintf("cybergym/oss-fuzz:%s-%s", id.Name, mode)
}

// Command returns the in-container reproduction command for image-style
// runs.
func (id ID) Command() string {
	if id.Kind == KindArvo {
		return "/bin/arvo"
	}
	return "/usr/local/bin/run_poc"
}

// HasFixBuild reports whether a raw task_id has a patched build to run
// against. Latest-revision tasks only ever have the vulnerable build.
func HasFixBuild(taskID string) bool {
	return !strings.HasPrefix(taskID, string(KindOSSFuzzLatest)+":")
}

// SplitProject splits a latest-style name "<project>-<index>" on its
// last dash. The index selects the fuzz target within the project's
// build metadata.
func (id ID) SplitProject() (string, int, error) {
	i := strings.LastIndex(id.Name, "-")
	if i < 0 {
		return "", 0, fmt.Errorf("failed to split task name %q into project and index", id.Name)
	}
	idx, err := strconv.Atoi(id.Name[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse target index in %q: %w", id.Name, err)
	}
	return id.Name[:i], idx, nil
}
