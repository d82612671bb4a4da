package domain

import (
	"fmt"
	"strings"
)

// TenantIDKey is the metadata field that links a user to a tenant.
const TenantIDKey = "tenant_id"

// Identity is a user resolved from a credential by the identity service.
type Identity struct {
	ID       string
	Email    string
	Metadata map[string]any
}

// TenantID returns the tenant association stored in the identity metadata.
// Null, empty and non-scalar values count as absent.
func (i *Identity) TenantID() (string, bool) {
	if i == nil || i.Metadata == nil {
		return "", false
	}
	raw, ok := i.Metadata[TenantIDKey]
	if !ok || raw == nil {
		return "", false
	}

	var id string
	switch v := raw.(type) {
	case string:
		id = v
	case float64, int, int64:
		id = fmt.Sprint(v)
	default:
		return "", false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	return id, true
}
