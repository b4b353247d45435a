package bridge

import (
	"context"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/internal/storage"
	"github.com/drone-bridge/drone-bridge-server/pkg/crypto"
)

// CredentialSource supplies the provisioned credential records the
// handshake checks tokens against.
type CredentialSource interface {
	ActiveCredentials(ctx context.Context) ([]*models.Credential, error)
}

// StaticCredentials is a fixed in-memory credential list. Used by tests
// and by configurations without a database.
type StaticCredentials []*models.Credential

// ActiveCredentials implements CredentialSource
func (c StaticCredentials) ActiveCredentials(_ context.Context) ([]*models.Credential, error) {
	out := make([]*models.Credential, 0, len(c))
	for _, cred := range c {
		if cred.IsActive {
			out = append(out, cred)
		}
	}
	return out, nil
}

// StaticFromHashes builds a StaticCredentials list from raw secret hashes
func StaticFromHashes(hashes []string) StaticCredentials {
	out := make(StaticCredentials, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, &models.Credential{SecretHash: h, IsActive: true})
	}
	return out
}

// StoreCredentials sources credential records from the storage layer,
// so provisioning changes apply to the next handshake without a restart.
type StoreCredentials struct {
	store storage.Store
}

// NewStoreCredentials creates a store-backed credential source
func NewStoreCredentials(store storage.Store) *StoreCredentials {
	return &StoreCredentials{store: store}
}

// ActiveCredentials implements CredentialSource
func (c *StoreCredentials) ActiveCredentials(ctx context.Context) ([]*models.Credential, error) {
	return c.store.ListCredentials(ctx, true)
}

// Authenticator implements the challenge-response handshake: a random
// salt per session, and token validation against every stored credential.
type Authenticator struct {
	saltBytes   int
	credentials CredentialSource
}

// NewAuthenticator creates an authenticator issuing saltBytes-byte salts
func NewAuthenticator(saltBytes int, credentials CredentialSource) *Authenticator {
	if saltBytes < 16 {
		saltBytes = 16
	}
	return &Authenticator{saltBytes: saltBytes, credentials: credentials}
}

// NewSalt generates a fresh session salt, transport-encoded
func (a *Authenticator) NewSalt() (string, error) {
	return crypto.GenerateRandomString(a.saltBytes)
}

// Validate checks a client-supplied token against every credential
// record, deriving hex(sha256(storedHash || salt)) per record. Returns
// the first matching credential, or nil.
func (a *Authenticator) Validate(ctx context.Context, salt, token string) (*models.Credential, error) {
	creds, err := a.credentials.ActiveCredentials(ctx)
	if err != nil {
		return nil, err
	}

	for _, cred := range creds {
		if crypto.SaltedToken(cred.SecretHash, salt) == token {
			return cred, nil
		}
	}
	return nil, nil
}
