package core

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	customIDSeparator = ":"
	// MaxCustomIDLength is Discord's limit for component custom ids.
	MaxCustomIDLength = 100
)

// CustomID is the parsed form of "<handler>:<action>:<arg>:...".
type CustomID struct {
	Handler string
	Action  string
	Args    []string
}

// NewCustomID joins the parts into a custom_id string.
func NewCustomID(handler, action string, args ...string) string {
	parts := append([]string{handler, action}, args...)
	return strings.Join(parts, customIDSeparator)
}

// ParseCustomID splits raw; it needs at least a handler and an action.
func ParseCustomID(raw string) (CustomID, bool) {
	if raw == "" || len(raw) > MaxCustomIDLength {
		return CustomID{}, false
	}
	parts := strings.Split(raw, customIDSeparator)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return CustomID{}, false
	}
	return CustomID{Handler: parts[0], Action: parts[1], Args: parts[2:]}, true
}

func (c CustomID) String() string { return NewCustomID(c.Handler, c.Action, c.Args...) }

// Arg returns the i-th argument or "".
func (c CustomID) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Int64 parses the i-th argument.
func (c CustomID) Int64(i int) (int64, error) {
	v, err := strconv.ParseInt(c.Arg(i), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("custom id %q: argument %d: %w", c.String(), i, err)
	}
	return v, nil
}
