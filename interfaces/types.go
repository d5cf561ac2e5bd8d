package interfaces

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NoLister is the sentinel listed_by value of a parcel that is not for sale.
var NoLister = common.Address{}

// ParcelID identifies a minted parcel. Ids are assigned densely starting at 1.
type ParcelID uint64

// ParseParcelID parses a decimal parcel id. Zero parses successfully and is
// rejected later by range checks, same as any other unminted id.
func ParseParcelID(s string) (ParcelID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid parcel id %q: %w", s, err)
	}
	return ParcelID(v), nil
}

// String returns the decimal representation of the id.
func (id ParcelID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParcelView is an immutable snapshot of a parcel as returned to readers.
type ParcelView struct {
	ID               ParcelID
	Metadata         string
	ListedBy         common.Address
	Custodian        common.Address
	OwnershipHistory []common.Address
	Price            *big.Int
}

// Listed reports whether the parcel currently has an active lister.
func (v ParcelView) Listed() bool {
	return v.ListedBy != NoLister
}

// NewAddressFromHex parses a 20-byte hex address, with or without 0x prefix.
func NewAddressFromHex(addr string) (common.Address, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return common.Address{}, errors.New("invalid address length: hex string must be 40 characters")
	}
	if !common.IsHexAddress(clean) {
		return common.Address{}, fmt.Errorf("invalid hex address: %s", addr)
	}
	return common.HexToAddress(clean), nil
}

// Coordinates is the positional payload conventionally stored as parcel metadata.
type Coordinates struct {
	X    int64 `json:"x"`
	Y    int64 `json:"y"`
	Area int64 `json:"area"`
}

// EncodeMetadata joins the coordinates as "x,y,area".
func EncodeMetadata(c Coordinates) string {
	return strings.Join([]string{
		strconv.FormatInt(c.X, 10),
		strconv.FormatInt(c.Y, 10),
		strconv.FormatInt(c.Area, 10),
	}, ",")
}

// ParseMetadata splits "x,y,area" back into coordinates. The registry stores
// metadata verbatim, so this can fail for parcels minted with other payloads.
func ParseMetadata(metadata string) (Coordinates, error) {
	parts := strings.Split(metadata, ",")
	if len(parts) != 3 {
		return Coordinates{}, fmt.Errorf("metadata %q: expected 3 comma-separated values, got %d", metadata, len(parts))
	}

	var values [3]int64
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return Coordinates{}, fmt.Errorf("metadata %q: %w", metadata, err)
		}
		values[i] = v
	}

	return Coordinates{X: values[0], Y: values[1], Area: values[2]}, nil
}
