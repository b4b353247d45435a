package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/pkg/crypto"
)

func TestAuthenticatorNewSalt(t *testing.T) {
	auth := NewAuthenticator(16, StaticCredentials{})

	salt1, err := auth.NewSalt()
	require.NoError(t, err)
	salt2, err := auth.NewSalt()
	require.NoError(t, err)

	assert.NotEmpty(t, salt1)
	assert.NotEqual(t, salt1, salt2, "salts must be unique per session")
}

func TestAuthenticatorValidate(t *testing.T) {
	creds := StaticFromHashes([]string{
		crypto.SecretHash("first-secret"),
		crypto.SecretHash("second-secret"),
	})
	auth := NewAuthenticator(16, creds)

	salt, err := auth.NewSalt()
	require.NoError(t, err)

	// A client knowing either secret derives a valid token
	token := crypto.SaltedToken(crypto.SecretHash("second-secret"), salt)
	cred, err := auth.Validate(context.Background(), salt, token)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, crypto.SecretHash("second-secret"), cred.SecretHash)

	// A wrong secret never matches
	bad := crypto.SaltedToken(crypto.SecretHash("wrong"), salt)
	cred, err = auth.Validate(context.Background(), salt, bad)
	require.NoError(t, err)
	assert.Nil(t, cred)

	// A valid token for a different salt never matches
	otherSalt, err := auth.NewSalt()
	require.NoError(t, err)
	stale := crypto.SaltedToken(crypto.SecretHash("first-secret"), otherSalt)
	cred, err = auth.Validate(context.Background(), salt, stale)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestStaticCredentialsSkipsInactive(t *testing.T) {
	creds := StaticCredentials{
		&models.Credential{SecretHash: crypto.SecretHash("active"), IsActive: true},
		&models.Credential{SecretHash: crypto.SecretHash("revoked"), IsActive: false},
	}

	active, err := creds.ActiveCredentials(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, crypto.SecretHash("active"), active[0].SecretHash)

	auth := NewAuthenticator(16, creds)
	salt, err := auth.NewSalt()
	require.NoError(t, err)

	revoked := crypto.SaltedToken(crypto.SecretHash("revoked"), salt)
	cred, err := auth.Validate(context.Background(), salt, revoked)
	require.NoError(t, err)
	assert.Nil(t, cred, "revoked credentials must not validate")
}
