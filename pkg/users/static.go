// Package users provides user directories that resolve approver display names.
package users

import (
	"context"
	"fmt"
	"strings"
)

// Static is an in-memory directory.
type Static struct {
	names map[string]string
}

func NewStatic(names map[string]string) *Static {
	copied := make(map[string]string, len(names))
	for id, name := range names {
		copied[id] = name
	}

	return &Static{names: copied}
}

// ParseStatic builds a directory from "id=Name,id=Name" pairs.
func ParseStatic(entries string) (*Static, error) {
	names := make(map[string]string)

	for _, pair := range strings.Split(entries, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		id, name, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid user entry %q, expected id=name", pair)
		}

		names[strings.TrimSpace(id)] = strings.TrimSpace(name)
	}

	return &Static{names: names}, nil
}

// ResolveUserName returns the name registered for userID, or "".
func (s *Static) ResolveUserName(_ context.Context, userID string) (string, error) {
	return s.names[userID], nil
}
