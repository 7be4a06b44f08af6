/*
Package nns resolves the ratings contract registered in the Neo Name Service.

Contract is expected to have a TXT record with either its Neo address or its
hash in little-endian hex.
*/
package nns

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/unwrap"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/place-ratings/rpc/ratings"
)

// ErrNoRecord is returned when domain has no record with contract address.
var ErrNoRecord = errors.New("no contract record")

// Reader reads NNS records.
type Reader struct {
	inv  ratings.Invoker
	hash util.Uint160
}

// NewReader returns Reader of the NNS contract with the given hash.
func NewReader(inv ratings.Invoker, hash util.Uint160) *Reader {
	return &Reader{inv: inv, hash: hash}
}

// Resolve returns TXT records of the domain.
func (r *Reader) Resolve(name string) ([]string, error) {
	return unwrap.ArrayOfUTF8Strings(r.inv.Call(r.hash, MethodResolve, name, TXT))
}

// ResolveContract returns hash of the contract registered under the domain.
// First parsable record wins.
func (r *Reader) ResolveContract(name string) (util.Uint160, error) {
	recs, err := r.Resolve(name)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("resolve '%s': %w", name, err)
	}

	for _, rec := range recs {
		if h, err := ParseHash(rec); err == nil {
			return h, nil
		}
	}

	return util.Uint160{}, fmt.Errorf("%w in '%s'", ErrNoRecord, name)
}

// ParseHash parses contract hash given as Neo address or as little-endian hex
// with optional 0x prefix.
func ParseHash(s string) (util.Uint160, error) {
	if h, err := address.StringToUint160(s); err == nil {
		return h, nil
	}
	return util.Uint160DecodeStringLE(strings.TrimPrefix(s, "0x"))
}

// IsName checks whether s looks like a domain rather than a contract hash.
func IsName(s string) bool {
	_, err := ParseHash(s)
	return err != nil && strings.Contains(s, ".")
}
