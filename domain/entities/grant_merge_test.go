package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrantSet_Merge_Deduplication(t *testing.T) {
	tests := []struct {
		name     string
		initial  *GrantSet
		toMerge  *GrantSet
		expected *GrantSet
	}{
		{
			name: "FS rules deduplicated",
			initial: &GrantSet{
				FS: &FileSystemCapability{
					Rules: []FileSystemRule{{Read: []string{"/data/**"}}},
				},
			},
			toMerge: &GrantSet{
				FS: &FileSystemCapability{
					Rules: []FileSystemRule{
						{Read: []string{"/data/**"}}, // duplicate
						{Write: []string{"/out/**"}},
					},
				},
			},
			expected: &GrantSet{
				FS: &FileSystemCapability{
					Rules: []FileSystemRule{
						{Read: []string{"/data/**"}},
						{Write: []string{"/out/**"}},
					},
				},
			},
		},
		{
			name:    "Merge into empty set",
			initial: &GrantSet{},
			toMerge: &GrantSet{
				FS: &FileSystemCapability{
					Rules: []FileSystemRule{{Read: []string{"/a"}}},
				},
			},
			expected: &GrantSet{
				FS: &FileSystemCapability{
					Rules: []FileSystemRule{{Read: []string{"/a"}}},
				},
			},
		},
		{
			name:     "Flags are unioned",
			initial:  &GrantSet{AllowReadAll: true},
			toMerge:  &GrantSet{AllowBlind: true},
			expected: &GrantSet{AllowReadAll: true, AllowBlind: true},
		},
		{
			name:     "Deny lists are unioned without duplicates",
			initial:  &GrantSet{Deny: []Capability{CapabilityWrite}},
			toMerge:  &GrantSet{Deny: []Capability{CapabilityWrite, CapabilityOpen}},
			expected: &GrantSet{Deny: []Capability{CapabilityWrite, CapabilityOpen}},
		},
		{
			name:     "Nil merge is a no-op",
			initial:  &GrantSet{AllowWriteAll: true},
			toMerge:  nil,
			expected: &GrantSet{AllowWriteAll: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.initial.Merge(tt.toMerge)
			assert.Equal(t, tt.expected, tt.initial)
		})
	}
}

func TestGrantSet_AddRule(t *testing.T) {
	g := &GrantSet{}
	g.AddRule(PathRule("/tmp/x", true, true))
	g.AddRule(PathRule("/tmp/x", true, true))
	assert.Len(t, g.FS.Rules, 1)
}
