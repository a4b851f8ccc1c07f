package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/isdelr/bookmarks-be/internal/imagefetch"
	"github.com/isdelr/bookmarks-be/internal/mail"
	"github.com/isdelr/bookmarks-be/internal/models"
	"github.com/isdelr/bookmarks-be/internal/store"
	"github.com/isdelr/bookmarks-be/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const fakeDataURL = "data:image/png;base64,iVBORw0KGgo="

type fakeFetcher struct {
	calls []string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	f.calls = append(f.calls, rawURL)
	if f.err != nil {
		return "", f.err
	}
	return fakeDataURL, nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fixture struct {
	store       *store.Store
	mailer      *mail.LogSender
	fetcher     *fakeFetcher
	clock       *clock
	events      *EventService
	users       *UserService
	collections *CollectionService
	bookmarks   *BookmarkService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New(testutil.NewDB(t))
	f := &fixture{
		store:   st,
		mailer:  mail.NewLogSender(),
		fetcher: &fakeFetcher{},
		clock:   &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.events = NewEventService(st)
	f.events.now = f.clock.Now

	users, err := NewUserService(st, f.mailer, f.events, UserServiceConfig{
		BaseURL:    "https://app.test/",
		BcryptCost: bcrypt.MinCost,
		Now:        f.clock.Now,
	})
	require.NoError(t, err)
	f.users = users
	f.collections = NewCollectionService(st, f.events)
	f.bookmarks = NewBookmarkService(st, f.fetcher, f.events)
	return f
}

func (f *fixture) register(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), username, username+"@x.com", "hunter22")
	require.NoError(t, err)
	return u
}

func (f *fixture) collection(t *testing.T, userID, name string) *models.Collection {
	t.Helper()
	c, err := f.collections.Create(context.Background(), userID, name)
	require.NoError(t, err)
	return c
}

func (f *fixture) bookmark(t *testing.T, userID string, collectionID *string) *models.Bookmark {
	t.Helper()
	b, err := f.bookmarks.Create(context.Background(), userID, BookmarkInput{
		URL:          "https://example.com/page",
		CollectionID: collectionID,
	})
	require.NoError(t, err)
	return b
}

var tokenRe = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

func lastToken(t *testing.T, mailer *mail.LogSender) string {
	t.Helper()
	sent := mailer.Sent()
	require.NotEmpty(t, sent)
	m := tokenRe.FindStringSubmatch(sent[len(sent)-1].HTML)
	require.Len(t, m, 2)
	return m[1]
}

func patch(t *testing.T, body string) Patch {
	t.Helper()
	p, err := ParsePatch([]byte(body))
	require.NoError(t, err)
	return p
}

func strPtr(s string) *string { return &s }

func (f *fixture) eventTypes(t *testing.T, userID string) []string {
	t.Helper()
	events, err := f.events.GetRecentEvents(context.Background(), userID, maxEventLimit)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func count(items []string, want string) int {
	n := 0
	for _, s := range items {
		if s == want {
			n++
		}
	}
	return n
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name, username, email, password string
	}{
		{"username too short", "ab", "a@x.com", "hunter22"},
		{"username too long", strings.Repeat("a", 31), "a@x.com", "hunter22"},
		{"blank username", "   ", "a@x.com", "hunter22"},
		{"malformed email", "alice", "not-an-email", "hunter22"},
		{"display name email", "alice", "Alice <alice@x.com>", "hunter22"},
		{"password too short", "alice", "alice@x.com", "short"},
		{"password too long", "alice", "alice@x.com", strings.Repeat("p", 73)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.users.Register(ctx, tc.username, tc.email, tc.password)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	_, err := f.users.Register(ctx, strings.Repeat("a", 30), "edge@x.com", "12345678")
	assert.NoError(t, err)
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	_, err := f.users.Register(ctx, "alice", "other@x.com", "hunter22")
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)

	_, err = f.users.Register(ctx, "alice2", "alice@x.com", "hunter22")
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)
}

func TestRegister_StoresHashAndSendsVerification(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "alice")

	stored, err := f.store.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter22")))
	assert.Nil(t, stored.EmailVerifiedAt)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@x.com", sent[0].To)
	assert.Contains(t, sent[0].HTML, "https://app.test/verify-email?token=")

	token := lastToken(t, f.mailer)
	require.NotNil(t, stored.VerificationTokenHash)
	assert.NotEqual(t, token, *stored.VerificationTokenHash, "only the digest is stored")
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")
	token := lastToken(t, f.mailer)

	u, err := f.users.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	require.NotNil(t, u.EmailVerifiedAt)

	_, err = f.users.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = f.users.VerifyEmail(ctx, "unknown")
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = f.users.VerifyEmail(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestLogin_EnumerationResistant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	u, err := f.users.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	_, wrongPassword := f.users.Login(ctx, "alice", "hunter23")
	_, unknownUser := f.users.Login(ctx, "mallory", "hunter22")

	assert.ErrorIs(t, wrongPassword, apperr.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, apperr.ErrInvalidCredentials)
	assert.Equal(t, apperr.PublicMessage(wrongPassword), apperr.PublicMessage(unknownUser))
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestCurrentUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	u, err := f.users.CurrentUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = f.users.CurrentUser(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = f.users.CurrentUser(ctx, "deleted-user")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.users.RequestPasswordReset(ctx, "nobody@x.com"))
	assert.Empty(t, f.mailer.Sent())

	require.NoError(t, f.users.RequestPasswordReset(ctx, "nope"), "a malformed address gets the same acknowledgement")
	assert.Empty(t, f.mailer.Sent())
}

func TestPasswordReset_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	require.NoError(t, f.users.RequestPasswordReset(ctx, "alice@x.com"))
	sent := f.mailer.Sent()
	assert.Contains(t, sent[len(sent)-1].HTML, "https://app.test/reset-password?token=")
	token := lastToken(t, f.mailer)

	assert.ErrorIs(t, f.users.ResetPassword(ctx, token, "short"), apperr.ErrValidation)

	require.NoError(t, f.users.ResetPassword(ctx, token, "newpassword"))
	_, err := f.users.Login(ctx, "alice", "newpassword")
	require.NoError(t, err)
	_, err = f.users.Login(ctx, "alice", "hunter22")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	err = f.users.ResetPassword(ctx, token, "anotherpassword")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredToken)

	assert.ErrorIs(t, f.users.ResetPassword(ctx, "", "anotherpassword"), apperr.ErrInvalidOrExpiredToken)
	assert.ErrorIs(t, f.users.ResetPassword(ctx, "bogus", "anotherpassword"), apperr.ErrInvalidOrExpiredToken)
}

func TestPasswordReset_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	require.NoError(t, f.users.RequestPasswordReset(ctx, "alice@x.com"))
	token := lastToken(t, f.mailer)

	f.clock.t = f.clock.t.Add(61 * time.Minute)
	err := f.users.ResetPassword(ctx, token, "newpassword")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredToken)

	_, err = f.users.Login(ctx, "alice", "hunter22")
	assert.NoError(t, err, "password must be unchanged")
}

func TestCollections_CreateAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	c := f.collection(t, alice.ID, "  Work  ")
	assert.Equal(t, "Work", c.Name)
	f.collection(t, bob.ID, "Bob's")

	_, err := f.collections.Create(ctx, alice.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	list, err := f.collections.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)
}

func TestCollections_UpdateOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	c := f.collection(t, alice.ID, "Work")

	_, err := f.collections.Update(ctx, bob.ID, c.ID, patch(t, `{"name":"Pwned"}`))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.store.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Work", got.Name)

	_, err = f.collections.Update(ctx, alice.ID, "missing", patch(t, `{"name":"X"}`))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.collections.Update(ctx, alice.ID, c.ID, patch(t, `{"name":42}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.collections.Update(ctx, alice.ID, c.ID, patch(t, `{"colour":"red"}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	updated, err := f.collections.Update(ctx, alice.ID, c.ID, patch(t, `{"name":"Personal","userId":"`+bob.ID+`"}`))
	require.NoError(t, err)
	assert.Equal(t, "Personal", updated.Name)
	assert.Equal(t, alice.ID, updated.UserID)

	assert.Equal(t, 1, count(f.eventTypes(t, bob.ID), EventOwnershipDenied))
}

func TestCollections_DeleteDetachesBookmarks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	c := f.collection(t, alice.ID, "Work")
	for i := 0; i < 3; i++ {
		f.bookmark(t, alice.ID, &c.ID)
	}

	assert.ErrorIs(t, f.collections.Delete(ctx, bob.ID, c.ID), apperr.ErrForbidden)
	_, err := f.store.GetCollection(ctx, c.ID)
	require.NoError(t, err, "collection must survive a forbidden delete")

	require.NoError(t, f.collections.Delete(ctx, alice.ID, c.ID))
	assert.ErrorIs(t, f.collections.Delete(ctx, alice.ID, c.ID), apperr.ErrNotFound)

	uncategorized, err := f.bookmarks.List(ctx, alice.ID, models.BookmarkFilter{Uncategorized: true})
	require.NoError(t, err)
	assert.Len(t, uncategorized, 3)
	for _, b := range uncategorized {
		assert.Nil(t, b.CollectionID)
	}
}

func TestBookmarks_CreateDerivesDomainAndTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	b, err := f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: " https://News.Example.com:8443/a?b=c ", Title: "  "})
	require.NoError(t, err)
	assert.Equal(t, "news.example.com", b.Domain)
	assert.Equal(t, "news.example.com", b.Title)
	assert.Equal(t, "https://News.Example.com:8443/a?b=c", b.URL)
	assert.Nil(t, b.CollectionID)
	assert.Nil(t, b.Favicon)
	assert.Nil(t, b.Memo)

	b, err = f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: "https://example.com", Title: "Example", Memo: strPtr("read later")})
	require.NoError(t, err)
	assert.Equal(t, "Example", b.Title)
	assert.Equal(t, "read later", *b.Memo)
}

func TestBookmarks_CreateInvalidURL(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	for _, raw := range []string{"", "not a url", "example.com/path", "javascript:alert(1)", "https://", "http://[::1"} {
		_, err := f.bookmarks.Create(context.Background(), alice.ID, BookmarkInput{URL: raw})
		assert.ErrorIs(t, err, apperr.ErrInvalidURL, raw)
	}
}

func TestBookmarks_CreateFavicon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	b, err := f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: "https://example.com", Favicon: strPtr("https://example.com/icon.png")})
	require.NoError(t, err)
	require.NotNil(t, b.Favicon)
	assert.Equal(t, fakeDataURL, *b.Favicon)
	assert.Equal(t, []string{"https://example.com/icon.png"}, f.fetcher.calls)

	embedded := "data:image/svg+xml;base64,PHN2Zy8+"
	b, err = f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: "https://example.com", Favicon: &embedded})
	require.NoError(t, err)
	assert.Equal(t, embedded, *b.Favicon)
	assert.Len(t, f.fetcher.calls, 1, "embedded images are not fetched")

	b, err = f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: "https://example.com", Favicon: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, b.Favicon)

	_, err = f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: "https://example.com", Favicon: strPtr("javascript:alert(1)")})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBookmarks_CreateFaviconFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.fetcher.err = fmt.Errorf("%w: 127.0.0.1", imagefetch.ErrBlockedHost)

	_, err := f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: "https://example.com", Favicon: strPtr("http://rebind.test/x.png")})
	assert.ErrorIs(t, err, apperr.ErrImageFetchFailed)
	assert.Equal(t, "Failed to fetch image", apperr.PublicMessage(err))
	assert.NotContains(t, apperr.PublicMessage(err), "127.0.0.1")

	list, err := f.bookmarks.List(ctx, alice.ID, models.BookmarkFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Contains(t, f.eventTypes(t, alice.ID), EventImageBlocked)
}

func TestBookmarks_CreateUnderForeignOrMissingCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	bobs := f.collection(t, bob.ID, "Bob's")

	_, err := f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: "https://example.com", CollectionID: &bobs.ID})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: "https://example.com", CollectionID: strPtr("gone")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	b, err := f.bookmarks.Create(ctx, alice.ID, BookmarkInput{URL: "https://example.com", CollectionID: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, b.CollectionID)

	assert.Empty(t, f.fetcher.calls)
}

func TestBookmarks_ListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	work := f.collection(t, alice.ID, "Work")

	inWork := f.bookmark(t, alice.ID, &work.ID)
	loose := f.bookmark(t, alice.ID, nil)
	f.bookmark(t, bob.ID, nil)

	all, err := f.bookmarks.List(ctx, alice.ID, models.BookmarkFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byCollection, err := f.bookmarks.List(ctx, alice.ID, models.BookmarkFilter{CollectionID: work.ID})
	require.NoError(t, err)
	require.Len(t, byCollection, 1)
	assert.Equal(t, inWork.ID, byCollection[0].ID)

	uncategorized, err := f.bookmarks.List(ctx, alice.ID, models.BookmarkFilter{Uncategorized: true})
	require.NoError(t, err)
	require.Len(t, uncategorized, 1)
	assert.Equal(t, loose.ID, uncategorized[0].ID)
}

func TestBookmarks_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	b := f.bookmark(t, alice.ID, nil)

	updated, err := f.bookmarks.Update(ctx, alice.ID, b.ID, patch(t, `{"memo":"hello","title":"ignored","url":"https://evil.test"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", *updated.Memo)
	assert.Equal(t, b.Title, updated.Title)
	assert.Equal(t, b.URL, updated.URL)

	updated, err = f.bookmarks.Update(ctx, alice.ID, b.ID, patch(t, `{"favicon":"https://example.com/a.png"}`))
	require.NoError(t, err)
	assert.Equal(t, fakeDataURL, *updated.Favicon)
	assert.Equal(t, "hello", *updated.Memo, "memo untouched when absent")

	_, err = f.bookmarks.Update(ctx, alice.ID, b.ID, patch(t, `{"favicon":"https://example.com/a.png"}`))
	require.NoError(t, err)
	assert.Len(t, f.fetcher.calls, 2, "every update re-runs the guard")

	updated, err = f.bookmarks.Update(ctx, alice.ID, b.ID, patch(t, `{"memo":null,"favicon":null}`))
	require.NoError(t, err)
	assert.Nil(t, updated.Memo)
	assert.Nil(t, updated.Favicon)

	_, err = f.bookmarks.Update(ctx, alice.ID, b.ID, patch(t, `{"memo":123}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.bookmarks.Update(ctx, alice.ID, "missing", patch(t, `{"memo":"x"}`))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := f.store.GetBookmark(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Memo)
}

func TestBookmarks_ForeignUserCannotMutate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	b := f.bookmark(t, alice.ID, nil)

	_, err := f.bookmarks.Update(ctx, bob.ID, b.ID, patch(t, `{"memo":"pwned","favicon":"https://example.com/x.png"}`))
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Empty(t, f.fetcher.calls, "no fetch before the ownership check passes")

	assert.ErrorIs(t, f.bookmarks.Delete(ctx, bob.ID, b.ID), apperr.ErrForbidden)

	got, err := f.store.GetBookmark(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Memo)

	require.NoError(t, f.bookmarks.Delete(ctx, alice.ID, b.ID))
	assert.ErrorIs(t, f.bookmarks.Delete(ctx, alice.ID, b.ID), apperr.ErrNotFound)

	assert.Equal(t, 2, count(f.eventTypes(t, bob.ID), EventOwnershipDenied))
}

func TestEvents_LimitClamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.register(t, "alice").ID

	for i := 0; i < 105; i++ {
		require.NoError(t, f.events.CreateEvent(ctx, "test", LevelInfo, fmt.Sprintf("e%d", i), &uid))
	}

	events, err := f.events.GetRecentEvents(ctx, uid, 0)
	require.NoError(t, err)
	assert.Len(t, events, 20)

	events, err = f.events.GetRecentEvents(ctx, uid, 1000)
	require.NoError(t, err)
	assert.Len(t, events, 100)
}

func TestParsePatch(t *testing.T) {
	for _, body := range []string{"null", "[]", `"x"`, "{", ""} {
		_, err := ParsePatch([]byte(body))
		assert.ErrorIs(t, err, apperr.ErrValidation, body)
	}

	p, err := ParsePatch([]byte(`{"a":"x","b":null,"c":1}`))
	require.NoError(t, err)

	v, ok, err := p.String("a")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok, err = p.String("missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = p.String("b")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	nv, ok, err := p.NullableString("b")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, nv)

	_, _, err = p.NullableString("c")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":null,"c":1}`, string(raw))
}
