package value

import (
	"fmt"
	"regexp"

	"github.com/rs/xid"
)

var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`) //nolint:gochecknoglobals

// TaskID identifies a Task row and the queue job executing it.
type TaskID string

func NewTaskID() TaskID {
	return TaskID(xid.New().String())
}

// ParseTaskID accepts caller-supplied idempotency keys (uuid, xid or any slug).
func ParseTaskID(s string) (TaskID, error) {
	if !taskIDPattern.MatchString(s) {
		return "", fmt.Errorf("invalid task id %q", s)
	}
	return TaskID(s), nil
}

// DerivedTaskID names the task a parent task spawns for key, so a retried parent addresses
// the same rows and jobs.
func DerivedTaskID(parent string, key int64) TaskID {
	return TaskID(fmt.Sprintf("%s-%d", parent, key))
}

func (id TaskID) String() string {
	return string(id)
}

// NewResolvedCodeBranch names the branch a conflict episode's resolutions are pushed to.
func NewResolvedCodeBranch() string {
	return "auto-fix-" + xid.New().String()
}
