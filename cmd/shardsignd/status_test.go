package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"shardsign/internal/codec"
	"shardsign/internal/peers"
	"shardsign/internal/vault"
)

func setTestGlobals(t *testing.T) string {
	dir := t.TempDir()
	prevCfg, prevData, prevLabel, prevPassword := cfgFile, dataDir, label, password
	t.Cleanup(func() {
		cfgFile, dataDir, label, password = prevCfg, prevData, prevLabel, prevPassword
	})
	cfgFile = filepath.Join(dir, "absent.toml") // missing file yields defaults
	dataDir = dir
	label = "default"
	password = "swordfish"
	return dir
}

func sealTestBundle(t *testing.T, relays []string) {
	g := &codec.Group{
		Version:   codec.CredentialVersion,
		Threshold: 2,
		Commits: []codec.Commitment{
			{Idx: 1, Pubkey: strings.Repeat("a", 64)},
			{Idx: 2, Pubkey: strings.Repeat("b", 64)},
			{Idx: 3, Pubkey: strings.Repeat("c", 64)},
		},
	}
	gs, err := codec.EncodeGroup(g)
	require.NoError(t, err)
	ss, err := codec.EncodeShare(&codec.Share{
		Version: codec.CredentialVersion,
		Idx:     1,
		Seckey:  bytes.Repeat([]byte{9}, 32),
	})
	require.NoError(t, err)

	rec, err := vault.Seal(password, &vault.Bundle{
		GroupCredential: gs,
		ShareCredential: ss,
		Relays:          relays,
		Label:           label,
	})
	require.NoError(t, err)

	ks, err := openKeystore()
	require.NoError(t, err)
	defer ks.Close()
	require.NoError(t, ks.Put(label, rec))
}

func TestStatusSummarizesRecordAndPolicy(t *testing.T) {
	dir := setTestGlobals(t)
	sealTestBundle(t, []string{"wss://relay.one"})

	policies, err := peers.NewStore(filepath.Join(dir, "policy.jsonl"))
	require.NoError(t, err)
	require.NoError(t, policies.SetPolicy(strings.Repeat("b", 64), peers.FieldSend, false))

	cmd := statusCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	s := out.String()
	require.Contains(t, s, "label:     default")
	require.Contains(t, s, "signer:    "+strings.Repeat("a", 64))
	require.Contains(t, s, "threshold 2 of 3")
	require.Contains(t, s, "relay:     wss://relay.one")
	require.Contains(t, s, "peers:     2 (1 send-blocked, 0 receive-blocked)")
}

func TestStatusNotesMissingRelays(t *testing.T) {
	setTestGlobals(t)
	sealTestBundle(t, nil)

	cmd := statusCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	require.Contains(t, out.String(), "none stored, configured defaults apply")
}

func TestStatusWrongPassword(t *testing.T) {
	setTestGlobals(t)
	sealTestBundle(t, nil)
	password = "not-it"

	cmd := statusCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	require.ErrorIs(t, cmd.Execute(), vault.ErrLocked)
}
