package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// SignatureAlg is the only supported signature algorithm.
const SignatureAlg = "ed25519"

var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Signature is a detached signature over the attestation payload.
type Signature struct {
	Alg   string `json:"alg"`
	KeyID string `json:"key_id"`
	Sig   string `json:"sig"`
}

// Signer signs attestations with an ed25519 key stored in a key directory.
type Signer struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	KeyID      string
}

// DefaultKeyDir returns ~/.gameforge/keys.
func DefaultKeyDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gameforge", "keys"), nil
}

// NewSigner loads keyDir/<keyID>.key, generating it on first use.
func NewSigner(keyDir, keyID string) (*Signer, error) {
	if !keyIDPattern.MatchString(keyID) || keyID == "." || keyID == ".." {
		return nil, fmt.Errorf("invalid key id %q", keyID)
	}
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, err
	}

	keyPath := filepath.Join(keyDir, keyID+".key")
	data, err := os.ReadFile(keyPath)
	switch {
	case err == nil:
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("invalid private key size in %s", keyPath)
		}
	case errors.Is(err, os.ErrNotExist):
		_, priv, genErr := ed25519.GenerateKey(rand.Reader)
		if genErr != nil {
			return nil, genErr
		}
		data = priv
		if err := os.WriteFile(keyPath, data, 0600); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	priv := ed25519.PrivateKey(data)
	return &Signer{
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
		KeyID:      keyID,
	}, nil
}

// Sign attaches a signature to att, replacing any existing one.
func (s *Signer) Sign(att *Attestation) error {
	if att == nil {
		return fmt.Errorf("attestation required")
	}
	payload, err := signingPayload(att)
	if err != nil {
		return err
	}
	att.Signature = &Signature{
		Alg:   SignatureAlg,
		KeyID: s.KeyID,
		Sig:   base64.StdEncoding.EncodeToString(ed25519.Sign(s.PrivateKey, payload)),
	}
	return nil
}

// VerifySignature checks the attached signature using the key named by it
// in keyDir.
func VerifySignature(att *Attestation, keyDir string) error {
	if att == nil {
		return fmt.Errorf("attestation required")
	}
	if att.Signature == nil {
		return fmt.Errorf("signature required")
	}
	if att.Signature.Alg != SignatureAlg {
		return fmt.Errorf("unsupported signature alg %q", att.Signature.Alg)
	}
	pub, err := loadPublicKey(keyDir, att.Signature.KeyID)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(att.Signature.Sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	payload, err := signingPayload(att)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, payload, sig) {
		return fmt.Errorf("invalid attestation signature")
	}
	return nil
}

func signingPayload(att *Attestation) ([]byte, error) {
	unsigned := *att
	unsigned.Signature = nil
	if unsigned.Schema != Schema {
		return nil, fmt.Errorf("unknown attestation schema: %q", unsigned.Schema)
	}
	return json.Marshal(&unsigned)
}

func loadPublicKey(keyDir, keyID string) (ed25519.PublicKey, error) {
	if !keyIDPattern.MatchString(keyID) || keyID == "." || keyID == ".." {
		return nil, fmt.Errorf("invalid key id %q", keyID)
	}
	data, err := os.ReadFile(filepath.Join(keyDir, keyID+".key"))
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size")
	}
	return ed25519.PrivateKey(data).Public().(ed25519.PublicKey), nil
}
