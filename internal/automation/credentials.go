package automation

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Credentials is an identity on the merchant site
type Credentials struct {
	ExternalID string
	Login      string
	Password   string
}

const (
	loginAlphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%"

	loginLength    = 12
	passwordLength = 16
)

// CredentialIssuer generates merchant-site identities with a
// cryptographically secure source
type CredentialIssuer struct{}

// NewCredentialIssuer creates an issuer
func NewCredentialIssuer() *CredentialIssuer {
	return &CredentialIssuer{}
}

// Issue generates a fresh identity
func (ci *CredentialIssuer) Issue() (Credentials, error) {
	login, err := randomString(loginAlphabet, loginLength)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to generate login: %w", err)
	}

	password, err := randomString(passwordAlphabet, passwordLength)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to generate password: %w", err)
	}

	return Credentials{
		ExternalID: fmt.Sprintf("EXT-%s", uuid.New().String()),
		Login:      fmt.Sprintf("user_%s", login),
		Password:   password,
	}, nil
}

func randomString(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
