package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testGroup() *Group {
	return &Group{
		Version:   CredentialVersion,
		Threshold: 2,
		Commits: []Commitment{
			{Idx: 1, Pubkey: "02" + strings.Repeat("ab", 32)},
			{Idx: 2, Pubkey: strings.Repeat("cd", 32)},
			{Idx: 3, Pubkey: "03" + strings.Repeat("ef", 32)},
		},
	}
}

func testShare(idx uint32) *Share {
	return &Share{
		Version: CredentialVersion,
		Idx:     idx,
		Seckey:  make([]byte, 32),
	}
}

func TestGroupRoundTrip(t *testing.T) {
	s, err := EncodeGroup(testGroup())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s, GroupPrefix))

	g, err := DecodeGroup(s)
	require.NoError(t, err)
	require.Equal(t, uint32(2), g.Threshold)
	require.Len(t, g.Commits, 3)
}

func TestShareRoundTrip(t *testing.T) {
	s, err := EncodeShare(testShare(2))
	require.NoError(t, err)

	sh, err := DecodeShare(s)
	require.NoError(t, err)
	require.Equal(t, uint32(2), sh.Idx)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"wrong prefix", SharePrefix + "AAAA"},
		{"not base64", GroupPrefix + "!!!!"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeGroup(tc.in)
			require.Error(t, err)
		})
	}
}

func TestDecodeGroupRejectsBadThreshold(t *testing.T) {
	g := testGroup()
	g.Threshold = 4
	s, err := EncodeGroup(g)
	require.NoError(t, err)
	_, err = DecodeGroup(s)
	require.Error(t, err)

	g.Threshold = 0
	s, err = EncodeGroup(g)
	require.NoError(t, err)
	_, err = DecodeGroup(s)
	require.Error(t, err)
}

func TestValidateReportsReason(t *testing.T) {
	res := ValidateGroup("garbage")
	require.False(t, res.IsValid)
	require.NotEmpty(t, res.Message)

	s, err := EncodeGroup(testGroup())
	require.NoError(t, err)
	res = ValidateGroup(s)
	require.True(t, res.IsValid)
}

func TestSelfPubkeyBindsShareToGroup(t *testing.T) {
	g := testGroup()

	pk, err := SelfPubkey(g, testShare(1))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("ab", 32), pk)

	_, err = SelfPubkey(g, testShare(9))
	require.ErrorIs(t, err, ErrShareUnbound)
}

func TestNormalizePubkey(t *testing.T) {
	full := "02" + strings.Repeat("AB", 32)
	require.Equal(t, strings.Repeat("ab", 32), NormalizePubkey(full))
	bare := strings.Repeat("ab", 32)
	require.Equal(t, bare, NormalizePubkey(bare))
	// 64-char keys starting with 02 must not be truncated
	odd := "02" + strings.Repeat("a", 62)
	require.Equal(t, odd, NormalizePubkey(odd))
}

func TestValidateRelayList(t *testing.T) {
	normalized, errs := ValidateRelayList([]string{
		"wss://relay.one/",
		"wss://relay.one",
		"ws://relay.two/path/",
		"http://not-a-relay",
		"://broken",
		"",
	})
	require.Equal(t, []string{"wss://relay.one", "ws://relay.two/path"}, normalized)
	require.Len(t, errs, 2)
}

func TestValidateRelayListAllInvalid(t *testing.T) {
	normalized, errs := ValidateRelayList([]string{"http://a", "nope"})
	require.Empty(t, normalized)
	require.NotEmpty(t, errs)
}
