package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ptahnest/ptahnest/internal/database/testutil"
	"github.com/ptahnest/ptahnest/internal/models"
)

var testFingerprint = Fingerprint{
	IPAddress: "198.51.100.7",
	UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
}

func newTestSessions(t *testing.T, clock func() time.Time) (*SessionService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	seedSessionUser(t, db, "user-1")
	seedSessionUser(t, db, "user-2")

	svc, err := NewSessionService(db, SessionConfig{Clock: clock})
	require.NoError(t, err)
	return svc, db
}

// seedSessionUser satisfies the sessions→users foreign key.
func seedSessionUser(t *testing.T, db *gorm.DB, id string) {
	t.Helper()

	require.NoError(t, db.Create(&models.User{
		ID:       id,
		Username: id,
		Email:    id + "@example.com",
		Password: "not-a-real-hash",
	}).Error)
}

func TestSessionIssueStampsFingerprint(t *testing.T) {
	svc, _ := newTestSessions(t, nil)

	session, err := svc.Issue(context.Background(), "user-1", testFingerprint, false, "")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.Equal(t, testFingerprint.IPAddress, session.IPAddress)
	require.Equal(t, testFingerprint.UserAgent, session.UserAgent)
	require.True(t, session.Fingerprinted())
}

func TestSessionIssueRotatesPreviousToken(t *testing.T) {
	svc, db := newTestSessions(t, nil)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "user-1", testFingerprint, false, "")
	require.NoError(t, err)

	second, err := svc.Issue(ctx, "user-1", testFingerprint, false, first.Token)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	// Presenting the old token after rotation misses.
	_, err = svc.Resolve(ctx, first.Token)
	require.ErrorIs(t, err, ErrSessionNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Where("user_id = ?", "user-1").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSessionResolve(t *testing.T) {
	svc, _ := newTestSessions(t, nil)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "user-1", testFingerprint, false, "")
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	require.Equal(t, issued.ID, resolved.ID)
	require.Equal(t, "user-1", resolved.UserID)

	_, err = svc.Resolve(ctx, "no-such-token")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, db := newTestSessions(t, func() time.Time { return now })
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "user-1", testFingerprint, false, "")
	require.NoError(t, err)

	later, err := NewSessionService(db, SessionConfig{Clock: func() time.Time {
		return now.Add(DefaultSessionTTL + time.Minute)
	}})
	require.NoError(t, err)

	_, err = later.Resolve(ctx, issued.Token)
	require.ErrorIs(t, err, ErrSessionExpired)

	// Expired rows are destroyed on resolution.
	var count int64
	require.NoError(t, db.Model(&models.Session{}).Where("token = ?", issued.Token).Count(&count).Error)
	require.Zero(t, count)
}

func TestSessionRememberExtendsTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestSessions(t, func() time.Time { return now })

	session, err := svc.Issue(context.Background(), "user-1", testFingerprint, true, "")
	require.NoError(t, err)
	require.True(t, session.Remember)
	require.Equal(t, now.Add(DefaultRememberTTL), session.ExpiresAt)
}

func TestSessionDestroyIsIdempotent(t *testing.T) {
	svc, _ := newTestSessions(t, nil)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "user-1", testFingerprint, false, "")
	require.NoError(t, err)

	require.NoError(t, svc.Destroy(ctx, issued.Token))
	require.NoError(t, svc.Destroy(ctx, issued.Token))

	_, err = svc.Resolve(ctx, issued.Token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionCleanupExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, db := newTestSessions(t, func() time.Time { return now })
	ctx := context.Background()

	stale, err := svc.Issue(ctx, "user-1", testFingerprint, false, "")
	require.NoError(t, err)
	fresh, err := svc.Issue(ctx, "user-2", testFingerprint, true, "")
	require.NoError(t, err)

	sweeper, err := NewSessionService(db, SessionConfig{Clock: func() time.Time {
		return now.Add(DefaultSessionTTL + time.Hour)
	}})
	require.NoError(t, err)

	removed, err := sweeper.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = sweeper.Resolve(ctx, stale.Token)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = sweeper.Resolve(ctx, fresh.Token)
	require.NoError(t, err)
}
