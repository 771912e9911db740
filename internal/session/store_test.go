package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStoreSetGetDelete(t *testing.T) {
	store := NewStore()
	store.SetText("abc", "Elon Musk is the CEO of Tesla.")

	sess, ok := store.Get("abc")
	require.True(t, ok)
	require.Equal(t, "Elon Musk is the CEO of Tesla.", sess.Text)
	require.False(t, sess.UpdatedAt.IsZero())

	store.SetText("abc", "Google was founded in California.")
	require.Equal(t, "Google was founded in California.", store.Text("abc"))
	require.Equal(t, 1, store.Len())

	store.Delete("abc")
	_, ok = store.Get("abc")
	require.False(t, ok)
	require.Empty(t, store.Text("abc"))
}

func TestStoreIgnoresEmptyID(t *testing.T) {
	store := NewStore()
	store.SetText("", "text")
	require.Zero(t, store.Len())
}

func TestGenerateID(t *testing.T) {
	id1 := GenerateID()
	id2 := GenerateID()
	require.NotEqual(t, id1, id2)
	_, err := uuid.Parse(id1)
	require.NoError(t, err)
}

func TestFromRequestIssuesCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	id := FromRequest(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, id)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, CookieName, cookies[0].Name)
	require.Equal(t, id, cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec2 := httptest.NewRecorder()
	require.Equal(t, id, FromRequest(rec2, req))
	require.Empty(t, rec2.Result().Cookies())
}

func TestFromRequestReplacesMalformedCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "not-a-uuid"})
	id := FromRequest(httptest.NewRecorder(), req)
	require.NotEqual(t, "not-a-uuid", id)
}

func TestContextID(t *testing.T) {
	ctx := ContextWithID(context.Background(), "s1")
	require.Equal(t, "s1", GetIDFromContext(ctx))
	require.Empty(t, GetIDFromContext(context.Background()))
}

func TestSweepDropsIdleSessions(t *testing.T) {
	store := NewStore()
	store.SetText("old", "Google was founded in California.")
	store.Store("stale", Session{ID: "stale", Text: "x", UpdatedAt: time.Now().Add(-2 * time.Hour)})
	store.SetText("fresh", "Elon Musk is the CEO of Tesla.")

	removed := store.Sweep(time.Now().Add(-time.Hour))
	require.Equal(t, 1, removed)
	require.Equal(t, 2, store.Len())
	_, ok := store.Get("stale")
	require.False(t, ok)

	require.Equal(t, 2, store.Sweep(time.Now().Add(time.Minute)))
	require.Zero(t, store.Len())
}

func TestStartSweeperEvictsInBackground(t *testing.T) {
	store := NewStore()
	for i := 0; i < 100; i++ {
		store.SetText(GenerateID(), "   ")
	}
	stop := store.StartSweeper(5*time.Millisecond, time.Nanosecond, nil)
	defer stop()

	require.Eventually(t, func() bool { return store.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	stop()
	stop()
}
