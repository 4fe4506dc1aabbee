package runner

import (
	"testing"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestParseDelay(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want time.Duration
	}{
		{
			name: "hours",
			data: map[string]any{"duration": float64(2), "unit": "hours"},
			want: 2 * time.Hour,
		},
		{
			name: "minutes",
			data: map[string]any{"duration": float64(30), "unit": "minutes"},
			want: 30 * time.Minute,
		},
		{
			name: "days by default",
			data: map[string]any{"duration": float64(3)},
			want: 72 * time.Hour,
		},
		{
			name: "unknown unit falls back to days",
			data: map[string]any{"duration": float64(1), "unit": "fortnights"},
			want: 24 * time.Hour,
		},
		{
			name: "string duration",
			data: map[string]any{"duration": "4", "unit": "hours"},
			want: 4 * time.Hour,
		},
		{
			name: "fractional duration",
			data: map[string]any{"duration": 1.5, "unit": "hours"},
			want: 90 * time.Minute,
		},
		{
			name: "missing duration defaults to one unit",
			data: map[string]any{"unit": "hours"},
			want: time.Hour,
		},
		{
			name: "non-numeric duration defaults to one unit",
			data: map[string]any{"duration": "soon", "unit": "minutes"},
			want: time.Minute,
		},
		{
			name: "negative duration clamps to one unit",
			data: map[string]any{"duration": float64(-5), "unit": "hours"},
			want: time.Hour,
		},
		{
			name: "nil data defaults to one day",
			data: nil,
			want: 24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &models.Node{ID: "d1", Type: models.NodeTypeDelay, Data: tt.data}
			assert.Equal(t, tt.want, parseDelay(node))
		})
	}
}
