package interfaces

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		coords   Coordinates
		expected string
	}{
		{name: "first reference parcel", coords: Coordinates{X: 1, Y: 2, Area: 3}, expected: "1,2,3"},
		{name: "second reference parcel", coords: Coordinates{X: 5, Y: 4, Area: 7}, expected: "5,4,7"},
		{name: "negative coordinates", coords: Coordinates{X: -10, Y: 0, Area: 11}, expected: "-10,0,11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeMetadata(tt.coords)
			assert.Equal(t, tt.expected, encoded)

			parsed, err := ParseMetadata(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.coords, parsed)
		})
	}
}

func TestParseMetadata_Invalid(t *testing.T) {
	for _, input := range []string{"sample URI", "1,2", "1,2,3,4", "1,a,3", ""} {
		_, err := ParseMetadata(input)
		assert.Error(t, err, input)
	}
}

func TestParseParcelID(t *testing.T) {
	id, err := ParseParcelID("42")
	require.NoError(t, err)
	assert.Equal(t, ParcelID(42), id)
	assert.Equal(t, "42", id.String())

	_, err = ParseParcelID("-1")
	assert.Error(t, err)
	_, err = ParseParcelID("abc")
	assert.Error(t, err)
}

func TestNewAddressFromHex(t *testing.T) {
	want := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	addr, err := NewAddressFromHex("0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, want, addr)

	addr, err = NewAddressFromHex("00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, want, addr)

	_, err = NewAddressFromHex("0x1234")
	assert.Error(t, err)
	_, err = NewAddressFromHex("0xzz000000000000000000000000000000000000aa")
	assert.Error(t, err)
}

func TestNewStorageBackendLocation(t *testing.T) {
	loc, err := NewStorageBackendLocation("s3://bucket/prefix?region=eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "s3", loc.Scheme)
	assert.Equal(t, "bucket", loc.Host)
	assert.Equal(t, "eu-west-1", loc.GetParam("region"))

	_, err = NewStorageBackendLocation("ftp://example.com/x")
	assert.ErrorIs(t, err, ErrInvalidLocationURI)
}
