package workflow

import (
	"strconv"
	"strings"

	"ares/internal/domain"
)

type bumpRule struct {
	release bool
	force   bool
}

// versionRules lists the statuses whose forward transition bumps the script version.
var versionRules = map[domain.Status]bumpRule{
	domain.StatusDevelopment: {release: false, force: true},
	domain.StatusEditReadme:  {release: true, force: false},
}

const segmentCarry = 100

// Bump returns the version reached when a mission leaves status on a next order.
func Bump(status domain.Status, version string) (string, error) {
	rule, ok := versionRules[status]
	if !ok {
		return version, nil
	}
	return Increment(version, rule.release, rule.force)
}

// Increment applies a minor or release bump to a dotted version.
// A non-forced release bump leaves versions whose last segment is 0 untouched.
func Increment(version string, release, force bool) (string, error) {
	parts := strings.Split(strings.TrimSpace(version), ".")
	digits := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return "", &ValidationError{Field: "script_version", Reason: "malformed version " + strconv.Quote(version)}
		}
		digits = append(digits, n)
	}
	if release && !force && digits[len(digits)-1] == 0 {
		return version, nil
	}

	last := len(digits) - 1
	switch {
	case release && len(digits) > 1 && digits[0] == 0 && allZero(digits[1:last]):
		digits[0] = 1
		for i := 1; i < len(digits); i++ {
			digits[i] = 0
		}
	case release && len(digits) > 1:
		digits[last-1]++
		digits[last] = 0
	default:
		digits[last]++
	}

	for i := len(digits) - 1; i >= 0; i-- {
		if digits[i] < segmentCarry {
			continue
		}
		digits[i] = 0
		if i == 0 {
			digits = append([]int{1}, digits...)
			break
		}
		digits[i-1]++
	}

	out := make([]string, len(digits))
	for i, d := range digits {
		out[i] = strconv.Itoa(d)
	}
	return strings.Join(out, "."), nil
}

func allZero(ds []int) bool {
	for _, d := range ds {
		if d != 0 {
			return false
		}
	}
	return true
}
