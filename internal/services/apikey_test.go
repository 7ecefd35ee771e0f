package services

import (
	"context"
	"regexp"
	"testing"

	"anonhost/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyService(t *testing.T) {
	db := setupTestDB(t)
	service := NewAPIKeyService(db, NewAuditService(db, testLogger()))
	resolver := NewIdentityResolver(db, testLogger())
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")
	ctx := context.Background()

	aliceID := Identity{UserID: alice.ID, Name: "Alice B."}
	key, err := service.Create(ctx, aliceID, "  laptop ", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "laptop", key.Name)
	assert.Regexp(t, regexp.MustCompile(`^aliceb_[0-9a-f]{32}$`), key.Key)

	t.Run("Key Resolves To Owner", func(t *testing.T) {
		id, err := resolver.Resolve(ctx, Credential{BearerToken: key.Key})
		require.NoError(t, err)
		assert.Equal(t, alice.ID, id.UserID)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := service.Create(ctx, aliceID, "   ", "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("List Is Scoped", func(t *testing.T) {
		keys, err := service.List(ctx, Identity{UserID: bob.ID})
		require.NoError(t, err)
		assert.Empty(t, keys)

		keys, err = service.List(ctx, aliceID)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("Delete", func(t *testing.T) {
		err := service.Delete(ctx, Identity{UserID: bob.ID}, key.ID, "")
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		err = service.Delete(ctx, aliceID, "missing", "")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		require.NoError(t, service.Delete(ctx, aliceID, key.ID, ""))
		_, err = resolver.Resolve(ctx, Credential{BearerToken: key.Key})
		assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
	})
}
