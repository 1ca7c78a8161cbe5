package acts

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Signing methods stored alongside signatures.
const (
	MethodPlaceholder = "placeholder"
	MethodDigest      = "blake2b-256"
)

// SigningProvider produces a signature record for an act.
type SigningProvider interface {
	Sign(ctx context.Context, act Act, signerID int64, at time.Time) (Signature, error)
}

// PlaceholderSigner stamps an opaque identity and timestamp marker.
type PlaceholderSigner struct{}

// Sign implements SigningProvider.
func (PlaceholderSigner) Sign(_ context.Context, _ Act, signerID int64, at time.Time) (Signature, error) {
	return Signature{
		ID:       uuid.New(),
		Method:   MethodPlaceholder,
		Value:    fmt.Sprintf("SIGNED_BY_%d_AT_%s", signerID, at.UTC().Format(time.RFC3339)),
		SignerID: signerID,
		SignedAt: at,
	}, nil
}

// DigestSigner seals the act content with a keyed BLAKE2b-256 MAC.
type DigestSigner struct {
	key []byte
}

// NewDigestSigner validates the key length accepted by BLAKE2b.
func NewDigestSigner(key []byte) (*DigestSigner, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, errors.New("acts: signing key must be 1 to 64 bytes")
	}
	return &DigestSigner{key: append([]byte(nil), key...)}, nil
}

// Sign implements SigningProvider.
func (d *DigestSigner) Sign(_ context.Context, act Act, signerID int64, at time.Time) (Signature, error) {
	sum, err := d.digest(act, signerID, at)
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		ID:       uuid.New(),
		Method:   MethodDigest,
		Value:    hex.EncodeToString(sum),
		SignerID: signerID,
		SignedAt: at,
	}, nil
}

// Verify recomputes the MAC of act against sig.
func (d *DigestSigner) Verify(act Act, sig Signature) bool {
	if sig.Method != MethodDigest {
		return false
	}
	want, err := hex.DecodeString(sig.Value)
	if err != nil {
		return false
	}
	got, err := d.digest(act, sig.SignerID, sig.SignedAt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, got) == 1
}

func (d *DigestSigner) digest(act Act, signerID int64, at time.Time) ([]byte, error) {
	h, err := blake2b.New256(d.key)
	if err != nil {
		return nil, err
	}
	for _, part := range []string{
		strconv.FormatInt(act.ID, 10),
		strconv.FormatInt(act.CaseID, 10),
		strconv.Itoa(act.Version),
		act.Title,
		act.Content,
		act.FileName,
		strconv.FormatInt(signerID, 10),
		at.UTC().Format(time.RFC3339Nano),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return h.Sum(nil), nil
}
