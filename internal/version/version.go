// Package version implements project version extraction and the ordering
// check that gates a release: the declared version must strictly exceed the
// most recently released one.
//
// Ordering uses semantic version comparison (golang.org/x/mod/semver), never
// a plain string sort, so multi-digit components order correctly ("1.9" is
// older than "1.10").
package version

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// DefaultPattern matches a single-line XML-style version element, the form
// used by .NET project files. Exactly one capture group is required.
const DefaultPattern = `<Version>\s*([^<\s]+)\s*</Version>`

// Extract scans the file at path line by line and returns the first
// submatch of pattern. It fails if the pattern has no match or does not
// contain exactly one capture group.
func Extract(path, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid version pattern %q: %w", pattern, err)
	}
	if re.NumSubexp() != 1 {
		return "", fmt.Errorf("version pattern %q must have exactly one capture group, has %d", pattern, re.NumSubexp())
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening project file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := re.FindStringSubmatch(scanner.Text()); m != nil {
			return strings.TrimSpace(m[1]), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading project file: %w", err)
	}
	return "", fmt.Errorf("no version matching %q found in %s", pattern, path)
}

// IsValid reports whether v is a well-formed version string such as "1.0.2".
// The canonical "v" prefix is added internally; callers pass bare versions.
func IsValid(v string) bool {
	return v != "" && semver.IsValid("v"+v)
}

// Compare returns -1, 0, or +1 depending on whether a is older than, equal
// to, or newer than b under semantic version ordering. An empty string sorts
// below every valid version, which makes a first release pass the gate.
func Compare(a, b string) int {
	return semver.Compare(canon(a), canon(b))
}

func canon(v string) string {
	if v == "" {
		return ""
	}
	return "v" + v
}

// LatestTag selects, among tag names carrying the release prefix and a
// well-formed version, the one with the highest version. It returns the tag
// name and the bare version, or two empty strings when no release tag
// exists yet.
func LatestTag(names []string, prefix string) (name, bare string) {
	for _, n := range names {
		if !strings.HasPrefix(n, prefix) {
			continue
		}
		v := strings.TrimPrefix(n, prefix)
		if !IsValid(v) {
			continue
		}
		if bare == "" || Compare(v, bare) > 0 {
			name, bare = n, v
		}
	}
	return name, bare
}

// Result is the outcome of a gate check.
type Result struct {
	// Version is the declared project version under test.
	Version string
	// Latest is the bare version of the newest release tag, or "" when no
	// release exists yet.
	Latest string
	// Valid reports whether Version strictly exceeds Latest.
	Valid bool
	// Reason carries a human-readable diagnostic when the gate fails.
	Reason string
}

// Check runs the gate: it passes only when declared is a well-formed version
// strictly greater than latest. latest is "" for a first release.
func Check(declared, latest string) Result {
	res := Result{Version: declared, Latest: latest}

	if !IsValid(declared) {
		res.Reason = fmt.Sprintf("declared version %q is not a valid semantic version", declared)
		return res
	}
	if latest != "" && !IsValid(latest) {
		res.Reason = fmt.Sprintf("latest release tag carries invalid version %q", latest)
		return res
	}

	switch Compare(declared, latest) {
	case 1:
		res.Valid = true
	case 0:
		res.Reason = fmt.Sprintf("project version is not incremented: %s equals the latest release", declared)
	default:
		res.Reason = fmt.Sprintf("project version is not incremented: %s is older than the latest release %s", declared, latest)
	}
	return res
}
