package typeddata

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
)

var testDomain = Domain{
	Name:              "PlaceRatings",
	Version:           "1",
	Network:           netmode.UnitTestNet,
	VerifyingContract: util.Uint160{0xaa, 0xbb},
}

func TestEncodeType(t *testing.T) {
	require.Equal(t, "Domain(String name,String version,Integer network,Hash160 verifyingContract)", DomainSchema.EncodeType())
	require.Equal(t, "PlaceRating(Hash160 identity,Integer subjectId,Integer score,Integer nonce,Integer deadline)", PlaceRating.EncodeType())
}

func TestEncodeValue(t *testing.T) {
	w, err := encodeValue(PlaceRating.Fields[0].Type, util.Uint160{1})
	require.NoError(t, err)
	require.Len(t, w, wordSize)
	require.Equal(t, make([]byte, wordSize-util.Uint160Size), w[:wordSize-util.Uint160Size])

	w, err = encodeValue(PlaceRating.Fields[1].Type, uint64(258))
	require.NoError(t, err)
	require.Equal(t, byte(1), w[30])
	require.Equal(t, byte(2), w[31])

	_, err = encodeValue(PlaceRating.Fields[1].Type, big.NewInt(-1))
	require.Error(t, err)

	_, err = encodeValue(PlaceRating.Fields[1].Type, new(big.Int).Lsh(big.NewInt(1), 256))
	require.Error(t, err)

	_, err = encodeValue(PlaceRating.Fields[1].Type, "7")
	require.Error(t, err)

	_, err = encodeValue(PlaceRating.Fields[0].Type, []byte{1})
	require.Error(t, err)

	_, err = DomainSchema.hashStruct([]any{"x"})
	require.Error(t, err)
}

func TestBuild(t *testing.T) {
	b := NewBuilder(testDomain)
	require.Equal(t, testDomain, b.Domain())

	id := util.Uint160{1, 2, 3}

	_, err := b.Build(id, 0, 3, 0, 100)
	require.ErrorIs(t, err, ErrInvalidSubject)

	for _, s := range []uint8{0, 6, 255} {
		_, err = b.Build(id, 7, s, 0, 100)
		require.ErrorIs(t, err, ErrInvalidScore, s)
	}

	for s := uint8(MinScore); s <= MaxScore; s++ {
		m, err := b.Build(id, 7, s, 1, 100)
		require.NoError(t, err)
		require.Equal(t, Rating{Identity: id, SubjectID: 7, Score: s, Nonce: 1, Deadline: 100}, m.Rating)
		require.Equal(t, testDomain, m.Domain)
	}
}

func TestDigest(t *testing.T) {
	b := NewBuilder(testDomain)
	base, err := b.Build(util.Uint160{1}, 7, 4, 0, 1000)
	require.NoError(t, err)

	require.Equal(t, base.Digest(), base.Digest())
	require.NotEmpty(t, base.ID())

	mutations := map[string]func(m *Message){
		"identity": func(m *Message) { m.Rating.Identity = util.Uint160{2} },
		"subject":  func(m *Message) { m.Rating.SubjectID++ },
		"score":    func(m *Message) { m.Rating.Score++ },
		"nonce":    func(m *Message) { m.Rating.Nonce++ },
		"deadline": func(m *Message) { m.Rating.Deadline++ },
		"name":     func(m *Message) { m.Domain.Name = "Other" },
		"version":  func(m *Message) { m.Domain.Version = "2" },
		"network":  func(m *Message) { m.Domain.Network = netmode.MainNet },
		"contract": func(m *Message) { m.Domain.VerifyingContract = util.Uint160{0xcc} },
	}

	for name, mutate := range mutations {
		m := base
		mutate(&m)
		require.NotEqual(t, base.Digest(), m.Digest(), name)
	}
}

func TestSignVerify(t *testing.T) {
	k, err := keys.NewPrivateKey()
	require.NoError(t, err)

	other, err := keys.NewPrivateKey()
	require.NoError(t, err)

	m, err := NewBuilder(testDomain).Build(k.GetScriptHash(), 7, 4, 0, 1000)
	require.NoError(t, err)

	sig := m.Sign(k)
	require.True(t, m.Verify(k.PublicKey(), sig))
	require.False(t, m.Verify(nil, sig))
	require.False(t, m.Verify(other.PublicKey(), sig))
	require.False(t, m.Verify(other.PublicKey(), m.Sign(other)), "key must belong to identity")

	replay := m
	replay.Rating.Nonce++
	require.False(t, replay.Verify(k.PublicKey(), sig))

	foreign := m
	foreign.Domain.VerifyingContract = util.Uint160{0xee}
	require.False(t, foreign.Verify(k.PublicKey(), sig))
}

func TestJSON(t *testing.T) {
	m, err := NewBuilder(testDomain).Build(util.Uint160{1, 2}, 7, 5, 3, 12345)
	require.NoError(t, err)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.Contains(t, string(b), `"primaryType":"PlaceRating"`)
	require.Contains(t, string(b), `"type":"Hash160"`)

	var res Message
	require.NoError(t, json.Unmarshal(b, &res))
	require.Equal(t, m, res)

	t.Run("digest mismatch", func(t *testing.T) {
		var raw map[string]any
		require.NoError(t, json.Unmarshal(b, &raw))
		raw["message"].(map[string]any)["score"] = 1
		b, err := json.Marshal(raw)
		require.NoError(t, err)
		require.Error(t, json.Unmarshal(b, new(Message)))
	})

	t.Run("schema mismatch", func(t *testing.T) {
		s := strings.Replace(string(b), `"name":"nonce"`, `"name":"counter"`, 1)
		require.Error(t, json.Unmarshal([]byte(s), new(Message)))
	})

	t.Run("primary type", func(t *testing.T) {
		s := strings.Replace(string(b), `"primaryType":"PlaceRating"`, `"primaryType":"Other"`, 1)
		require.Error(t, json.Unmarshal([]byte(s), new(Message)))
	})
}
