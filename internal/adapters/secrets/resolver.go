package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

// RefPrefix marks a stored value as a reference into the secret store.
const RefPrefix = "secret://"

// Resolver implements ports.SecretResolver over a SecretStore.
type Resolver struct {
	store ports.SecretStore
}

// NewResolver creates a resolver. A nil store leaves plain values working and
// rejects references.
func NewResolver(store ports.SecretStore) *Resolver {
	return &Resolver{store: store}
}

// IsRef reports whether value is a secret:// reference.
func IsRef(value string) bool {
	return strings.HasPrefix(value, RefPrefix)
}

// ParseRef splits secret://<path>#<field>. field is empty when the reference
// names the whole secret.
func ParseRef(value string) (path, field string, err error) {
	if !IsRef(value) {
		return "", "", fmt.Errorf("not a secret reference")
	}
	rest := strings.TrimPrefix(value, RefPrefix)
	path, field, _ = strings.Cut(rest, "#")
	if path == "" {
		return "", "", fmt.Errorf("secret reference has an empty path")
	}
	return path, field, nil
}

// Resolve returns value unchanged unless it is a reference.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}

	path, field, err := ParseRef(value)
	if err != nil {
		return "", err
	}
	if r.store == nil {
		return "", fmt.Errorf("secret reference %s: no secret store configured", path)
	}

	secret, err := r.store.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}
	if field == "" {
		return secret.Value, nil
	}

	if v, ok := secret.Metadata[field]; ok {
		return v, nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(secret.Value), &fields); err != nil {
		return "", fmt.Errorf("secret %s: field %q requested but value is not a JSON object", path, field)
	}
	v, ok := fields[field].(string)
	if !ok {
		return "", fmt.Errorf("secret %s: field %q not found", path, field)
	}
	return v, nil
}

var _ ports.SecretResolver = (*Resolver)(nil)
