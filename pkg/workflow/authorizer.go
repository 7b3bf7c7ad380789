package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// StaticAuthorizer answers permission checks from a fixed grant table. The
// production deployment points the engine at the platform's authorization
// service instead; this implementation serves local setups and tests.
type StaticAuthorizer struct {
	grants map[string][]string
}

// NewStaticAuthorizer creates an authorizer from a user-to-permissions map.
func NewStaticAuthorizer(grants map[string][]string) *StaticAuthorizer {
	return &StaticAuthorizer{grants: grants}
}

// LoadStaticAuthorizer reads the grant table from a JSON file mapping user
// IDs to permission name lists.
func LoadStaticAuthorizer(path string) (*StaticAuthorizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permissions file: %w", err)
	}

	grants := make(map[string][]string)
	if err := json.Unmarshal(raw, &grants); err != nil {
		return nil, fmt.Errorf("failed to parse permissions file: %w", err)
	}

	return NewStaticAuthorizer(grants), nil
}

func (a *StaticAuthorizer) HasPermission(_ context.Context, userID, permission string) (bool, error) {
	for _, granted := range a.grants[userID] {
		if granted == permission {
			return true, nil
		}
	}

	return false, nil
}
