package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

var (
	secretPlaceholderPattern = regexp.MustCompile(`\{\{\s*secrets\.(\S+?)\s*\}\}`)
	secretValuePattern       = regexp.MustCompile(`"secrets\.([A-Za-z0-9_\-.]+)"`)
)

// SecretScope narrows a secret lookup to one tenant
type SecretScope struct {
	TenantID string
}

// SecretProvider resolves secret values by name
type SecretProvider interface {
	// GetSecret returns the value of name and whether it exists
	GetSecret(ctx context.Context, name string, scope SecretScope) (string, bool, error)

	// FetchAll returns the values of all names that exist, skipping unknown ones
	FetchAll(ctx context.Context, names []string, scope SecretScope) ([]string, error)
}

// SecretKeysInInput returns the distinct secret names referenced by a serialized payload.
// Placeholder references come first, then whole-value references.
func SecretKeysInInput(raw string) []string {
	seen := make(map[string]struct{})
	var names []string

	collect := func(pattern *regexp.Regexp) {
		for _, match := range pattern.FindAllStringSubmatch(raw, -1) {
			name := match[1]
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}

	collect(secretPlaceholderPattern)
	collect(secretValuePattern)
	return names
}

// replaceSecrets substitutes secret references in raw with their values.
// {{secrets.NAME}} is replaced in place; a whole JSON string "secrets.NAME" becomes the quoted value.
func replaceSecrets(ctx context.Context, raw string, provider SecretProvider, scope SecretScope) (string, error) {
	if provider == nil || len(SecretKeysInInput(raw)) == 0 {
		return raw, nil
	}

	var lookupErr error
	lookup := func(name string) (string, bool) {
		if lookupErr != nil {
			return "", false
		}
		value, ok, err := provider.GetSecret(ctx, name, scope)
		if err != nil {
			lookupErr = fmt.Errorf("failed to resolve secret %q: %w", name, err)
			return "", false
		}
		if !ok {
			lookupErr = fmt.Errorf("%w: %q", ErrMissingSecret, name)
			return "", false
		}
		return value, true
	}

	replaced := secretValuePattern.ReplaceAllStringFunc(raw, func(match string) string {
		name := secretValuePattern.FindStringSubmatch(match)[1]
		value, ok := lookup(name)
		if !ok {
			return match
		}
		quoted, _ := json.Marshal(value)
		return string(quoted)
	})

	replaced = secretPlaceholderPattern.ReplaceAllStringFunc(replaced, func(match string) string {
		name := secretPlaceholderPattern.FindStringSubmatch(match)[1]
		value, ok := lookup(name)
		if !ok {
			return match
		}
		quoted, _ := json.Marshal(value)
		// strip the surrounding quotes, keep JSON escaping
		return string(quoted[1 : len(quoted)-1])
	})

	if lookupErr != nil {
		return "", lookupErr
	}
	return replaced, nil
}
