package decompose

import (
	"fmt"
	"regexp"
	"strings"
)

// PolicyCode identifies the policy rule a patch broke.
type PolicyCode string

const (
	CodeTooManyOperations PolicyCode = "too_many_operations"
	CodeDisallowedTarget  PolicyCode = "disallowed_target"
)

// PolicyError is a request-fatal rejection raised before pattern detection.
type PolicyError struct {
	Code    PolicyCode
	Target  string
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy error (%s): %s", e.Code, e.Message)
}

var safePathRe = regexp.MustCompile(`^[A-Za-z0-9_\-/.]+$`)

// CheckTarget enforces the safe-path rule: alphanumerics, '_', '-', '/', '.'
// only, relative, and no ".." segments.
func CheckTarget(target string) error {
	if !safePathRe.MatchString(target) {
		return &PolicyError{
			Code:    CodeDisallowedTarget,
			Target:  target,
			Message: fmt.Sprintf("disallowed target path %q: only letters, digits, '_', '-', '/', '.' are permitted", target),
		}
	}
	if strings.HasPrefix(target, "/") {
		return &PolicyError{
			Code:    CodeDisallowedTarget,
			Target:  target,
			Message: fmt.Sprintf("disallowed target path %q: absolute paths are not permitted", target),
		}
	}
	for _, seg := range strings.Split(target, "/") {
		if seg == ".." {
			return &PolicyError{
				Code:    CodeDisallowedTarget,
				Target:  target,
				Message: fmt.Sprintf("disallowed target path %q: path traversal is not permitted", target),
			}
		}
	}
	return nil
}
