package gcp

// OAuth scopes used by the chain.
const (
	ScopeCloudPlatform         = "https://www.googleapis.com/auth/cloud-platform"
	ScopeCloudPlatformReadOnly = "https://www.googleapis.com/auth/cloud-platform.read-only"
	ScopeStorageFullControl    = "https://www.googleapis.com/auth/devstorage.full_control"
	ScopeStorageReadWrite      = "https://www.googleapis.com/auth/devstorage.read_write"
	ScopeStorageReadOnly       = "https://www.googleapis.com/auth/devstorage.read_only"
)

// impliedScopes maps a scope to the narrower scopes it grants.
var impliedScopes = map[string][]string{
	ScopeCloudPlatform: {
		ScopeCloudPlatformReadOnly,
		ScopeStorageFullControl,
		ScopeStorageReadWrite,
		ScopeStorageReadOnly,
	},
	ScopeCloudPlatformReadOnly: {ScopeStorageReadOnly},
	ScopeStorageFullControl:    {ScopeStorageReadWrite, ScopeStorageReadOnly},
	ScopeStorageReadWrite:      {ScopeStorageReadOnly},
}

// ScopeCovers reports whether granted includes requested, directly or by implication.
func ScopeCovers(granted []string, requested string) bool {
	for _, g := range granted {
		if g == requested {
			return true
		}
		for _, implied := range impliedScopes[g] {
			if implied == requested {
				return true
			}
		}
	}
	return false
}

// ScopesWithin reports whether every requested scope is covered by granted.
// An empty request is never within: a token always needs a scope.
func ScopesWithin(granted, requested []string) bool {
	if len(requested) == 0 {
		return false
	}
	for _, r := range requested {
		if !ScopeCovers(granted, r) {
			return false
		}
	}
	return true
}
