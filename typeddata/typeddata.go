/*
Package typeddata builds domain-separated structured messages describing a
place rating to be signed by the rating identity and verified by the ratings
contract.

Message digest is computed as

	SHA256(0x19 || 0x01 || domainSeparator || structHash)

where domainSeparator is the struct hash of the [Domain] and structHash is
the struct hash of the rating payload. Struct hash of a value is

	SHA256(SHA256(encodeType) || enc(field_1) || ... || enc(field_n))

with every field encoded into a 32-byte word: Hash160 is left-padded
big-endian, Integer is 256-bit big-endian and String is SHA256 of its UTF-8
bytes. Field order and types of [PlaceRating] must be byte-identical to the
ones the contract uses, otherwise every signature fails verification.
*/
package typeddata

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

const wordSize = 32

// Score bounds.
const (
	MinScore = 1
	MaxScore = 5
)

var (
	// ErrInvalidScore is returned for scores out of [MinScore, MaxScore].
	ErrInvalidScore = errors.New("score out of range")
	// ErrInvalidSubject is returned for non-positive subject IDs.
	ErrInvalidSubject = errors.New("subject ID must be positive")
)

// Field is a named typed element of the [Schema].
type Field struct {
	Name string                  `json:"name"`
	Type smartcontract.ParamType `json:"type"`
}

// Schema is an ordered list of fields of the named structure.
type Schema struct {
	Name   string
	Fields []Field
}

// Schemas of structures participating in message hashing.
var (
	DomainSchema = Schema{
		Name: "Domain",
		Fields: []Field{
			{Name: "name", Type: smartcontract.StringType},
			{Name: "version", Type: smartcontract.StringType},
			{Name: "network", Type: smartcontract.IntegerType},
			{Name: "verifyingContract", Type: smartcontract.Hash160Type},
		},
	}

	PlaceRating = Schema{
		Name: "PlaceRating",
		Fields: []Field{
			{Name: "identity", Type: smartcontract.Hash160Type},
			{Name: "subjectId", Type: smartcontract.IntegerType},
			{Name: "score", Type: smartcontract.IntegerType},
			{Name: "nonce", Type: smartcontract.IntegerType},
			{Name: "deadline", Type: smartcontract.IntegerType},
		},
	}
)

// EncodeType returns canonical type string, e.g.
// "Domain(String name,String version,Integer network,Hash160 verifyingContract)".
func (s Schema) EncodeType() string {
	var sb strings.Builder
	sb.WriteString(s.Name)
	sb.WriteByte('(')
	for i := range s.Fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s.Fields[i].Type.String())
		sb.WriteByte(' ')
		sb.WriteString(s.Fields[i].Name)
	}
	sb.WriteByte(')')
	return sb.String()
}

// TypeHash returns SHA256 of [Schema.EncodeType].
func (s Schema) TypeHash() util.Uint256 {
	return hash.Sha256([]byte(s.EncodeType()))
}

// hashStruct computes struct hash of values listed in the schema order.
func (s Schema) hashStruct(values []any) (util.Uint256, error) {
	if len(values) != len(s.Fields) {
		return util.Uint256{}, fmt.Errorf("%s: expected %d values, got %d", s.Name, len(s.Fields), len(values))
	}

	th := s.TypeHash()
	buf := make([]byte, 0, wordSize*(len(values)+1))
	buf = append(buf, th.BytesBE()...)

	for i := range s.Fields {
		word, err := encodeValue(s.Fields[i].Type, values[i])
		if err != nil {
			return util.Uint256{}, fmt.Errorf("%s.%s: %w", s.Name, s.Fields[i].Name, err)
		}
		buf = append(buf, word...)
	}

	return hash.Sha256(buf), nil
}

func encodeValue(typ smartcontract.ParamType, v any) ([]byte, error) {
	word := make([]byte, wordSize)

	switch typ {
	case smartcontract.Hash160Type:
		u, ok := v.(util.Uint160)
		if !ok {
			return nil, fmt.Errorf("expected util.Uint160, got %T", v)
		}
		copy(word[wordSize-util.Uint160Size:], u.BytesBE())
	case smartcontract.IntegerType:
		var n *big.Int
		switch x := v.(type) {
		case uint64:
			n = new(big.Int).SetUint64(x)
		case uint32:
			n = new(big.Int).SetUint64(uint64(x))
		case uint8:
			n = big.NewInt(int64(x))
		case *big.Int:
			n = x
		default:
			return nil, fmt.Errorf("expected unsigned integer, got %T", v)
		}
		if n.Sign() < 0 || n.BitLen() > 8*wordSize {
			return nil, errors.New("integer out of 256-bit unsigned range")
		}
		n.FillBytes(word)
	case smartcontract.StringType:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		h := hash.Sha256([]byte(s))
		copy(word, h.BytesBE())
	default:
		return nil, fmt.Errorf("unsupported field type %s", typ)
	}

	return word, nil
}

// Domain binds signatures to a particular deployment of the ratings
// contract. All fields are configuration constants which must match the
// ones of the contract.
type Domain struct {
	Name              string        `json:"name"`
	Version           string        `json:"version"`
	Network           netmode.Magic `json:"network"`
	VerifyingContract util.Uint160  `json:"verifyingContract"`
}

func (d Domain) values() []any {
	return []any{d.Name, d.Version, uint32(d.Network), d.VerifyingContract}
}

// Separator returns struct hash of the domain.
func (d Domain) Separator() util.Uint256 {
	h, err := DomainSchema.hashStruct(d.values())
	if err != nil {
		// values are typed statically
		panic(err)
	}
	return h
}

// Rating is a payload of the [PlaceRating] message.
type Rating struct {
	Identity  util.Uint160 `json:"identity"`
	SubjectID uint64       `json:"subjectId"`
	Score     uint8        `json:"score"`
	Nonce     uint64       `json:"nonce"`
	Deadline  uint64       `json:"deadline"`
}

func (r Rating) values() []any {
	return []any{r.Identity, r.SubjectID, r.Score, r.Nonce, r.Deadline}
}

// Message is a structured message ready to be signed.
type Message struct {
	Domain Domain
	Rating Rating
}

// StructHash returns struct hash of the rating payload.
func (m Message) StructHash() util.Uint256 {
	h, err := PlaceRating.hashStruct(m.Rating.values())
	if err != nil {
		panic(err)
	}
	return h
}

// Digest returns the hash to be signed.
func (m Message) Digest() util.Uint256 {
	sep := m.Domain.Separator()
	sh := m.StructHash()

	buf := make([]byte, 0, 2+2*wordSize)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, sep.BytesBE()...)
	buf = append(buf, sh.BytesBE()...)

	return hash.Sha256(buf)
}

// ID returns base58-encoded digest used to refer to the message in logs and
// responses.
func (m Message) ID() string {
	return base58.Encode(m.Digest().BytesBE())
}

// Sign signs message digest with the given key.
func (m Message) Sign(key *keys.PrivateKey) []byte {
	return key.SignHash(m.Digest())
}

// Verify checks that sig is a valid signature of the message digest made by
// the key and that the key belongs to the rating identity.
func (m Message) Verify(pub *keys.PublicKey, sig []byte) bool {
	if pub == nil || !pub.GetScriptHash().Equals(m.Rating.Identity) {
		return false
	}
	return pub.Verify(sig, m.Digest().BytesBE())
}

// Builder builds messages for a fixed domain.
type Builder struct {
	domain Domain
}

// NewBuilder returns Builder for the given domain.
func NewBuilder(d Domain) *Builder {
	return &Builder{domain: d}
}

// Domain returns domain messages are bound to.
func (b *Builder) Domain() Domain {
	return b.domain
}

// Build assembles rating message. Build performs no I/O and fails only on
// invalid score or subject.
func (b *Builder) Build(identity util.Uint160, subject uint64, score uint8, nonce uint64, deadline uint64) (Message, error) {
	if err := ValidateRating(subject, score); err != nil {
		return Message{}, err
	}

	return Message{
		Domain: b.domain,
		Rating: Rating{
			Identity:  identity,
			SubjectID: subject,
			Score:     score,
			Nonce:     nonce,
			Deadline:  deadline,
		},
	}, nil
}

// ValidateRating checks subject and score bounds.
func ValidateRating(subject uint64, score uint8) error {
	if subject == 0 {
		return ErrInvalidSubject
	}
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("%w: %d", ErrInvalidScore, score)
	}
	return nil
}
