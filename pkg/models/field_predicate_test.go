package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldPredicate_Evaluate(t *testing.T) {
	contact := &Contact{
		ID:        "contact-1",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Fields: map[string]any{
			"plan":  "pro",
			"score": 42,
			"notes": "",
		},
	}

	tests := []struct {
		name    string
		config  map[string]any
		want    bool
		wantErr bool
	}{
		{
			name:   "eq on builtin",
			config: map[string]any{"field": "first_name", "operator": "eq", "value": "Ada"},
			want:   true,
		},
		{
			name:   "eq defaults when operator omitted",
			config: map[string]any{"field": "plan", "value": "pro"},
			want:   true,
		},
		{
			name:   "neq",
			config: map[string]any{"field": "plan", "operator": "neq", "value": "free"},
			want:   true,
		},
		{
			name:   "contains",
			config: map[string]any{"field": "email", "operator": "contains", "value": "@example"},
			want:   true,
		},
		{
			name:   "eq on numeric custom field compares stringified",
			config: map[string]any{"field": "score", "operator": "eq", "value": "42"},
			want:   true,
		},
		{
			name:   "exists present",
			config: map[string]any{"field": "plan", "operator": "exists"},
			want:   true,
		},
		{
			name:   "exists absent",
			config: map[string]any{"field": "missing", "operator": "exists"},
			want:   false,
		},
		{
			name:   "empty on blank field",
			config: map[string]any{"field": "notes", "operator": "empty"},
			want:   true,
		},
		{
			name:   "empty on absent field",
			config: map[string]any{"field": "missing", "operator": "empty"},
			want:   true,
		},
		{
			name:    "missing field name",
			config:  map[string]any{"operator": "eq", "value": "x"},
			wantErr: true,
		},
		{
			name:    "unsupported operator",
			config:  map[string]any{"field": "plan", "operator": "gt", "value": "1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FieldPredicate{}.Evaluate(contact, tt.config)

			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetPredicate(t *testing.T) {
	matched, err := GetPredicate("").Evaluate(&Contact{}, nil)
	require.NoError(t, err)
	assert.True(t, matched, "unknown predicate kinds default to the always-true predicate")

	_, ok := GetPredicate("field").(*FieldPredicate)
	assert.True(t, ok)
}
