package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopesWithin(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		granted   []string
		requested []string
		want      bool
	}{
		{
			name:      "storage read/write under cloud-platform",
			granted:   []string{ScopeCloudPlatform},
			requested: []string{ScopeStorageReadWrite},
			want:      true,
		},
		{
			name:      "cloud-platform is not under storage read/write",
			granted:   []string{ScopeStorageReadWrite},
			requested: []string{ScopeCloudPlatform},
			want:      false,
		},
		{
			name:      "identical scope",
			granted:   []string{ScopeStorageReadWrite},
			requested: []string{ScopeStorageReadWrite},
			want:      true,
		},
		{
			name:      "read only under read/write",
			granted:   []string{ScopeStorageReadWrite},
			requested: []string{ScopeStorageReadOnly},
			want:      true,
		},
		{
			name:      "full control is broader than read/write",
			granted:   []string{ScopeStorageReadWrite},
			requested: []string{ScopeStorageFullControl},
			want:      false,
		},
		{
			name:      "read/write is not under cloud-platform read-only",
			granted:   []string{ScopeCloudPlatformReadOnly},
			requested: []string{ScopeStorageReadWrite},
			want:      false,
		},
		{
			name:      "one uncovered scope fails the request",
			granted:   []string{ScopeStorageReadWrite},
			requested: []string{ScopeStorageReadOnly, "https://www.googleapis.com/auth/bigquery"},
			want:      false,
		},
		{
			name:      "empty request",
			granted:   []string{ScopeCloudPlatform},
			requested: nil,
			want:      false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ScopesWithin(tc.granted, tc.requested))
		})
	}
}
