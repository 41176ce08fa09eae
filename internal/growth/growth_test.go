package growth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestPct(t *testing.T) {
	tests := []struct {
		name string
		curr *float64
		prev *float64
		want *float64
	}{
		{"increase", ptr(150), ptr(100), ptr(50)},
		{"decrease", ptr(75), ptr(100), ptr(-25)},
		{"curr zero is -100", ptr(0), ptr(40), ptr(-100)},
		{"prev zero", ptr(10), ptr(0), nil},
		{"both zero", ptr(0), ptr(0), nil},
		{"prev nil", ptr(10), nil, nil},
		{"curr nil", nil, ptr(10), nil},
		{"extreme not clamped", ptr(1e6), ptr(1), ptr(99999900)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pct(tt.curr, tt.prev)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestOf_Identity(t *testing.T) {
	for _, x := range []float64{0.01, 1, 42.5, 1e9} {
		got := Of(x, x)
		require.NotNil(t, got)
		assert.Equal(t, 0.0, *got)
	}

	for _, x := range []float64{0, 1, -5, 1e9} {
		assert.Nil(t, Of(x, 0))
	}
}
