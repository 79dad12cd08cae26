// Package codec decodes and validates the credential pair a signer is
// provisioned with: the group credential (public commitments of every
// participant plus the signing threshold) and the share credential (this
// participant's fragment of the split key). Credentials travel as compact
// strings: a fixed prefix followed by base64url-encoded CBOR.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	GroupPrefix = "sgroup1"
	SharePrefix = "sshare1"

	// CredentialVersion is the only body version either codec accepts.
	CredentialVersion = 1
)

var (
	ErrBadPrefix    = errors.New("codec: unrecognized credential prefix")
	ErrBadVersion   = errors.New("codec: unsupported credential version")
	ErrShareUnbound = errors.New("codec: share index not present in group commitments")
)

// Commitment is one participant's public commitment in the group credential.
type Commitment struct {
	Idx    uint32 `cbor:"idx"`
	Pubkey string `cbor:"pubkey"`
}

// Group is the decoded group credential.
type Group struct {
	Version   uint32       `cbor:"version"`
	Threshold uint32       `cbor:"threshold"`
	Commits   []Commitment `cbor:"commits"`
	// Members is a fallback membership list used by older credentials that
	// carry no commitments.
	Members []string `cbor:"members,omitempty"`
}

// Share is the decoded share credential.
type Share struct {
	Version uint32 `cbor:"version"`
	Idx     uint32 `cbor:"idx"`
	Seckey  []byte `cbor:"seckey"`
}

// Result reports structural validity with a human-readable reason.
type Result struct {
	IsValid bool
	Message string
}

func encodeBody(prefix string, v interface{}) (string, error) {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeBody(prefix, s string, v interface{}) error {
	if !strings.HasPrefix(s, prefix) {
		return ErrBadPrefix
	}
	raw, err := base64.RawURLEncoding.DecodeString(s[len(prefix):])
	if err != nil {
		return fmt.Errorf("codec: malformed credential body: %w", err)
	}
	return cbor.Unmarshal(raw, v)
}

// EncodeGroup serializes g into its credential string form.
func EncodeGroup(g *Group) (string, error) {
	return encodeBody(GroupPrefix, g)
}

// DecodeGroup parses and structurally validates a group credential.
func DecodeGroup(s string) (*Group, error) {
	g := new(Group)
	if err := decodeBody(GroupPrefix, s, g); err != nil {
		return nil, err
	}
	if g.Version != CredentialVersion {
		return nil, ErrBadVersion
	}
	if len(g.Commits) == 0 && len(g.Members) == 0 {
		return nil, errors.New("codec: group has no commitments or members")
	}
	n := uint32(len(g.Commits))
	if n == 0 {
		n = uint32(len(g.Members))
	}
	if g.Threshold == 0 || g.Threshold > n {
		return nil, fmt.Errorf("codec: threshold %d out of range for %d participants", g.Threshold, n)
	}
	seen := make(map[uint32]bool, len(g.Commits))
	for _, c := range g.Commits {
		if seen[c.Idx] {
			return nil, fmt.Errorf("codec: duplicate commitment index %d", c.Idx)
		}
		seen[c.Idx] = true
		if !isHexPubkey(c.Pubkey) {
			return nil, fmt.Errorf("codec: commitment %d has malformed pubkey", c.Idx)
		}
	}
	return g, nil
}

// EncodeShare serializes s into its credential string form.
func EncodeShare(sh *Share) (string, error) {
	return encodeBody(SharePrefix, sh)
}

// DecodeShare parses and structurally validates a share credential.
func DecodeShare(s string) (*Share, error) {
	sh := new(Share)
	if err := decodeBody(SharePrefix, s, sh); err != nil {
		return nil, err
	}
	if sh.Version != CredentialVersion {
		return nil, ErrBadVersion
	}
	if len(sh.Seckey) != 32 {
		return nil, errors.New("codec: share secret must be 32 bytes")
	}
	return sh, nil
}

// ValidateGroup reports whether s is a well-formed group credential.
func ValidateGroup(s string) Result {
	if _, err := DecodeGroup(s); err != nil {
		return Result{IsValid: false, Message: err.Error()}
	}
	return Result{IsValid: true, Message: "group credential ok"}
}

// ValidateShare reports whether s is a well-formed share credential.
func ValidateShare(s string) Result {
	if _, err := DecodeShare(s); err != nil {
		return Result{IsValid: false, Message: err.Error()}
	}
	return Result{IsValid: true, Message: "share credential ok"}
}

// SelfPubkey resolves the pubkey this share signs under. The share index must
// appear among the group commitments, otherwise the pair is rejected.
func SelfPubkey(g *Group, sh *Share) (string, error) {
	for _, c := range g.Commits {
		if c.Idx == sh.Idx {
			return NormalizePubkey(c.Pubkey), nil
		}
	}
	return "", ErrShareUnbound
}

// NormalizePubkey lowercases pk and strips the 02/03 parity prefix from
// 66-character compressed keys so that the same participant always compares
// equal regardless of which form a relay handed us.
func NormalizePubkey(pk string) string {
	pk = strings.ToLower(strings.TrimSpace(pk))
	if len(pk) == 66 && (strings.HasPrefix(pk, "02") || strings.HasPrefix(pk, "03")) {
		pk = pk[2:]
	}
	return pk
}

func isHexPubkey(pk string) bool {
	pk = NormalizePubkey(pk)
	if len(pk) != 64 {
		return false
	}
	_, err := hex.DecodeString(pk)
	return err == nil
}

// ValidateRelayList normalizes a relay URL list: trailing slashes stripped,
// duplicates removed, order preserved. Malformed entries are reported but do
// not fail the call; the caller decides whether zero valid relays is fatal.
func ValidateRelayList(urls []string) (normalized []string, errs []string) {
	seen := make(map[string]bool, len(urls))
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		u, err := url.Parse(trimmed)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", raw, err))
			continue
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, fmt.Sprintf("%s: relay URL must use ws or wss", raw))
			continue
		}
		if u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s: relay URL missing host", raw))
			continue
		}
		norm := strings.TrimRight(u.String(), "/")
		if seen[norm] {
			continue
		}
		seen[norm] = true
		normalized = append(normalized, norm)
	}
	return normalized, errs
}
