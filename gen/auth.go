package gen

import (
	"fmt"
	"strings"
)

// ResolveAuthDefault walks a dotted `auth().member.path` default value
// expression against authValue (the caller's resolved principal, a nested
// map[string]any), the same traversal rule the policy expression compiler
// uses for `auth()` member access: a missing intermediate segment resolves
// to nil rather than erroring.
func ResolveAuthDefault(authValue any, path string) any {
	if path == "" {
		return authValue
	}
	cur := authValue
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := m[seg]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// RequireAuthDefault is ResolveAuthDefault but errors when the resolved
// value is nil, for fields whose default is mandatory (e.g. a non-nullable
// ownerId populated from auth().id on create).
func RequireAuthDefault(authValue any, path string) (any, error) {
	v := ResolveAuthDefault(authValue, path)
	if v == nil {
		return nil, fmt.Errorf("gen: auth().%s is required but resolved to nil", path)
	}
	return v, nil
}
