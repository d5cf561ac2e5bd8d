package flags

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.25", "250000000000000000"},
		{"2ether", "2000000000000000000"},
		{"0", "0"},
		{"42wei", "42"},
		{"0.000000000000000001", "1"},
	}
	for _, tt := range tests {
		got, err := ParseEther(tt.in)
		require.NoError(t, err, tt.in)
		want, _ := new(big.Int).SetString(tt.want, 10)
		assert.Equal(t, 0, want.Cmp(got), tt.in)
	}

	for _, in := range []string{"", "abc", "0.0000000000000000001", "1.5wei"} {
		_, err := ParseEther(in)
		assert.Error(t, err, in)
	}
}
