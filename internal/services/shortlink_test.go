package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"anonhost/internal/apperr"
	"anonhost/internal/metrics"
	"anonhost/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newShortlinkService(t *testing.T, db *gorm.DB) *ShortlinkService {
	t.Helper()
	return NewShortlinkService(db, nil, testLogger(), metrics.New(nil), NewAuditService(db, testLogger()))
}

func TestShortlinkService_Create(t *testing.T) {
	db := setupTestDB(t)
	service := newShortlinkService(t, db)
	user := createUser(t, db, "alice@example.com")
	owner := Identity{UserID: user.ID}
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		link, err := service.Create(ctx, owner, CreateShortlinkInput{
			URL:           "https://example.com/a?b=c",
			Title:         "  docs ",
			ExpiresInDays: 7,
		})
		require.NoError(t, err)
		assert.Len(t, link.ID, 8)
		assert.Equal(t, "https://example.com/a?b=c", link.OriginalURL)
		require.NotNil(t, link.Title)
		assert.Equal(t, "docs", *link.Title)
		require.NotNil(t, link.ExpireAt)
		assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *link.ExpireAt, time.Minute)
	})

	t.Run("Rejects Non HTTP Targets", func(t *testing.T) {
		for _, target := range []string{"ftp://example.com", "javascript:alert(1)", "example.com", ""} {
			_, err := service.Create(ctx, owner, CreateShortlinkInput{URL: target})
			assert.ErrorIs(t, err, apperr.ErrValidation, target)
		}
	})

	t.Run("Retries Id Collisions", func(t *testing.T) {
		require.NoError(t, db.Create(&models.Shortlink{ID: "taken000", UserID: user.ID, OriginalURL: "https://x.y"}).Error)

		ids := []string{"taken000", "taken000", "fresh000"}
		service.idGenerator = func() (string, error) {
			id := ids[0]
			ids = ids[1:]
			return id, nil
		}
		link, err := service.Create(ctx, owner, CreateShortlinkInput{URL: "https://example.com"})
		require.NoError(t, err)
		assert.Equal(t, "fresh000", link.ID)

		service.idGenerator = func() (string, error) { return "taken000", nil }
		_, err = service.Create(ctx, owner, CreateShortlinkInput{URL: "https://example.com"})
		assert.Error(t, err)
	})
}

func TestShortlinkService_Ownership(t *testing.T) {
	db := setupTestDB(t)
	service := newShortlinkService(t, db)
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")
	ctx := context.Background()

	link, err := service.Create(ctx, Identity{UserID: alice.ID}, CreateShortlinkInput{URL: "https://example.com"})
	require.NoError(t, err)

	_, err = service.Get(ctx, Identity{UserID: bob.ID}, link.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = service.Get(ctx, Identity{UserID: bob.ID, Admin: true}, link.ID)
	assert.NoError(t, err)

	_, err = service.Get(ctx, Identity{UserID: alice.ID}, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = service.Delete(ctx, Identity{UserID: bob.ID}, link.ID, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	links, err := service.List(ctx, Identity{UserID: bob.ID})
	require.NoError(t, err)
	assert.Empty(t, links)

	require.NoError(t, service.Delete(ctx, Identity{UserID: alice.ID}, link.ID, ""))
	_, err = service.Resolve(ctx, link.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestShortlinkService_Update(t *testing.T) {
	db := setupTestDB(t)
	service := newShortlinkService(t, db)
	alice := createUser(t, db, "alice@example.com")
	owner := Identity{UserID: alice.ID}
	ctx := context.Background()

	link, err := service.Create(ctx, owner, CreateShortlinkInput{URL: "https://example.com", Title: "old", ExpiresInDays: 1})
	require.NoError(t, err)

	newURL := "https://example.org"
	empty := ""
	public := true
	zero := 0
	updated, err := service.Update(ctx, owner, link.ID, UpdateShortlinkInput{
		URL:           &newURL,
		Title:         &empty,
		Public:        &public,
		ExpiresInDays: &zero,
	})
	require.NoError(t, err)
	assert.Equal(t, newURL, updated.OriginalURL)
	assert.Nil(t, updated.Title)
	assert.True(t, updated.Public)
	assert.Nil(t, updated.ExpireAt)

	bad := "not a url"
	_, err = service.Update(ctx, owner, link.ID, UpdateShortlinkInput{URL: &bad})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestShortlinkService_Resolve(t *testing.T) {
	db := setupTestDB(t)
	service := newShortlinkService(t, db)
	alice := createUser(t, db, "alice@example.com")
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, db.Create(&models.Shortlink{ID: "old", UserID: alice.ID, OriginalURL: "https://old.example", ExpireAt: &past}).Error)
	require.NoError(t, db.Create(&models.Shortlink{ID: "xyz", UserID: alice.ID, OriginalURL: "https://example.com/x?y=1", ExpireAt: &future}).Error)

	clicks := func(id string) int64 {
		var l models.Shortlink
		require.NoError(t, db.First(&l, "id = ?", id).Error)
		return l.Clicks
	}

	t.Run("Expired Is Not Counted", func(t *testing.T) {
		_, err := service.Resolve(ctx, "old")
		assert.ErrorIs(t, err, apperr.ErrExpired)
		assert.Equal(t, int64(0), clicks("old"))
	})

	t.Run("Active Counts Each Call", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			target, err := service.Resolve(ctx, "xyz")
			require.NoError(t, err)
			assert.Equal(t, "https://example.com/x?y=1", target)
		}
		assert.Equal(t, int64(3), clicks("xyz"))
	})

	t.Run("Concurrent Clicks", func(t *testing.T) {
		require.NoError(t, db.Model(&models.Shortlink{}).Where("id = ?", "xyz").Update("clicks", 0).Error)

		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = service.Resolve(ctx, "xyz")
			}()
		}
		wg.Wait()

		got := clicks("xyz")
		assert.GreaterOrEqual(t, got, int64(1))
		assert.LessOrEqual(t, got, int64(3))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := service.Resolve(ctx, "nope")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestShortlinkService_RedisCache(t *testing.T) {
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	service := NewShortlinkService(db, rdb, testLogger(), metrics.New(nil), NewAuditService(db, testLogger()))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	user := createUser(t, db, "alice@example.com")
	owner := Identity{UserID: user.ID}
	ctx := context.Background()

	link, err := service.Create(ctx, owner, CreateShortlinkInput{URL: "https://example.com/old"})
	require.NoError(t, err)
	key := "shortlink:" + link.ID

	target, err := service.Resolve(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/old", target)
	require.True(t, mr.Exists(key))
	assert.Equal(t, 10*time.Minute, mr.TTL(key))

	t.Run("Serves From Cache", func(t *testing.T) {
		// Written behind the service's back, so only a cache miss would see it.
		require.NoError(t, db.Model(&models.Shortlink{}).Where("id = ?", link.ID).
			Update("original_url", "https://example.com/sneaky").Error)

		target, err := service.Resolve(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/old", target)

		var stored models.Shortlink
		require.NoError(t, db.First(&stored, "id = ?", link.ID).Error)
		assert.Equal(t, int64(2), stored.Clicks)
	})

	t.Run("Update Invalidates Target", func(t *testing.T) {
		newURL := "https://example.com/new"
		_, err := service.Update(ctx, owner, link.ID, UpdateShortlinkInput{URL: &newURL})
		require.NoError(t, err)
		assert.False(t, mr.Exists(key))

		target, err := service.Resolve(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, newURL, target)
		assert.True(t, mr.Exists(key))
	})

	t.Run("Update Invalidates Expiry", func(t *testing.T) {
		days := 1
		_, err := service.Update(ctx, owner, link.ID, UpdateShortlinkInput{ExpiresInDays: &days})
		require.NoError(t, err)

		now = now.Add(48 * time.Hour)
		_, err = service.Resolve(ctx, link.ID)
		assert.ErrorIs(t, err, apperr.ErrExpired)
	})

	t.Run("Delete Invalidates", func(t *testing.T) {
		_, err := service.Lookup(ctx, link.ID)
		require.NoError(t, err)
		require.True(t, mr.Exists(key))

		require.NoError(t, service.Delete(ctx, owner, link.ID, "127.0.0.1"))
		assert.False(t, mr.Exists(key))

		_, err = service.Resolve(ctx, link.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("Cache Outage Falls Back To Database", func(t *testing.T) {
		other, err := service.Create(ctx, owner, CreateShortlinkInput{URL: "https://example.com/db"})
		require.NoError(t, err)

		mr.SetError("ERR cache unavailable")
		defer mr.SetError("")

		target, err := service.Resolve(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/db", target)
	})
}
