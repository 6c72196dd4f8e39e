// Package security implements the gate applied to every externally supplied
// command string and filesystem path before it may be executed or touched.
// The validator fails closed: a deny-list match is an unconditional
// rejection, never a sanitization.
package security

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Dacraezy1/autorig/pkg/paths"
)

// Result is the outcome of a validation check.
type Result struct {
	OK     bool
	Reason string
}

// Ok returns a passing result.
func Ok() Result { return Result{OK: true} }

// Rejected returns a failing result with the given reason.
func Rejected(reason string) Result { return Result{OK: false, Reason: reason} }

type denyPattern struct {
	re     *regexp.Regexp
	reason string
}

var commandDenyList = []denyPattern{
	{regexp.MustCompile(`\|\|`), "command chaining (||)"},
	{regexp.MustCompile(`&&`), "command chaining (&&)"},
	{regexp.MustCompile(`;`), "command separation (;)"},
	{regexp.MustCompile("`"), "command substitution (backtick)"},
	{regexp.MustCompile(`\$\(\(`), "arithmetic expansion"},
	{regexp.MustCompile(`\$\(`), "command substitution ($(...))"},
	{regexp.MustCompile(`(^|\s)eval\s`), "eval invocation"},
	{regexp.MustCompile(`(^|\s)exec\s`), "exec invocation"},
	{regexp.MustCompile(`(^|\s)source\s`), "source invocation"},
	{regexp.MustCompile(`bash\s+-c`), "nested shell execution (bash -c)"},
	{regexp.MustCompile(`(^|\s)sh\s+-c`), "nested shell execution (sh -c)"},
	{regexp.MustCompile(`python\S*\s+-c`), "interpreter one-liner (python -c)"},
	{regexp.MustCompile(`perl\S*\s+-e`), "interpreter one-liner (perl -e)"},
	{regexp.MustCompile(`ruby\S*\s+-e`), "interpreter one-liner (ruby -e)"},
	{regexp.MustCompile(`rm\s+-rf`), "recursive force removal"},
}

// restrictedRoots are directories no gated command may reference and no
// gated path may resolve into.
var restrictedRoots = []string{"/etc", "/root", "/boot", "/sys", "/proc", "/dev"}

// ValidateCommand checks a command string against the deny list.
// Matching is case-insensitive to catch trivially disguised patterns.
func ValidateCommand(cmd string) Result {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return Rejected("empty command")
	}
	if strings.Contains(cmd, "\x00") {
		return Rejected("command contains null bytes")
	}

	lower := strings.ToLower(cmd)
	for _, p := range commandDenyList {
		if p.re.MatchString(lower) {
			return Rejected(p.reason)
		}
	}

	for _, part := range strings.Fields(cmd) {
		clean := strings.Trim(part, `'"`)
		for _, root := range restrictedRoots {
			if clean == root || strings.HasPrefix(clean, root+"/") {
				return Rejected("references restricted directory " + root)
			}
		}
	}

	return Ok()
}

// ValidatePath checks a path for traversal attempts and verifies that its
// expanded, cleaned form resolves inside one of the allowed roots.
func ValidatePath(path string, allowedRoots []string) Result {
	if err := paths.ValidatePath(path); err != nil {
		return Rejected(err.Error())
	}

	if strings.Contains(path, "../") || strings.Contains(path, `..\`) {
		return Rejected("path contains parent directory references")
	}

	expanded := filepath.Clean(paths.Expand(path))

	for _, root := range restrictedRoots {
		if expanded == root || strings.HasPrefix(expanded, root+"/") {
			return Rejected("path resolves into restricted directory " + root)
		}
	}

	if len(allowedRoots) == 0 {
		return Ok()
	}
	for _, root := range allowedRoots {
		if paths.ContainsPath(paths.Expand(root), expanded) {
			return Ok()
		}
	}
	return Rejected("path escapes allowed roots")
}
