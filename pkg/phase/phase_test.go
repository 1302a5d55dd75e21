package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Phase
		wantErr bool
	}{
		{"0", Stories, false},
		{"-1", PreValidation, false},
		{"4", QAMerge, false},
		{"stories", Stories, false},
		{"Smoke Test", SmokeTest, false},
		{"smoketest", SmokeTest, false},
		{"prevalidation", PreValidation, false},
		{"QAMerge", QAMerge, false},
		{"7", 0, true},
		{"deploy", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, p := range All() {
		got, err := Parse(p.String())
		require.NoError(t, err, "phase %s", p)
		assert.Equal(t, p, got)
	}
}
