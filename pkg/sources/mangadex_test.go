package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func testClient(srv *httptest.Server) *MangaDex {
	return &MangaDex{
		client:     srv.Client(),
		baseURL:    srv.URL,
		uploadsURL: "https://uploads.example.org",
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestGetMangaParsesAttributes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {
			"id": "m1",
			"attributes": {
				"title": {"en": "Test Manga"},
				"description": {"en": "desc"},
				"availableTranslatedLanguages": ["en", "ja"],
				"tags": [{"attributes": {"name": {"en": "Oneshot"}}}]
			},
			"relationships": [
				{"id": "c1", "type": "cover_art", "attributes": {"fileName": "cover.jpg"}}
			]
		}}`)
	}))
	defer srv.Close()

	manga, err := testClient(srv).GetManga(context.Background(), "m1")
	assert.NoError(t, err)
	assert.Equal(t, "m1", manga.ID)
	assert.Equal(t, "Test Manga", manga.Title)
	assert.True(t, manga.Oneshot)
	assert.Equal(t, []string{"en", "ja"}, manga.Languages)
	assert.Equal(t, "https://uploads.example.org/covers/m1/cover.jpg", manga.CoverURL)
}

func TestGetChaptersPaginatesUntilExhaustion(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)
		switch offset {
		case "0":
			// First page: one chapter, total of two.
			fmt.Fprint(w, `{"total": 2, "data": [
				{"id": "ch1", "attributes": {"chapter": "1", "translatedLanguage": "en", "pages": 10}}
			]}`)
		default:
			fmt.Fprint(w, `{"total": 2, "data": [
				{"id": "ch2", "attributes": {"chapter": "2", "translatedLanguage": "en", "pages": 12,
					"externalUrl": "https://elsewhere.example"}}
			]}`)
		}
	}))
	defer srv.Close()

	chapters, err := testClient(srv).GetChapters(context.Background(), "m1")
	assert.NoError(t, err)
	assert.Len(t, chapters, 2)
	assert.Equal(t, []string{"0", "1"}, offsets)
	assert.Equal(t, "1", chapters[0].Number)
	assert.False(t, chapters[0].External)
	assert.True(t, chapters[1].External)
}

func TestGetChaptersCollectsGroups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total": 1, "data": [
			{"id": "ch1",
			 "attributes": {"chapter": "1", "volume": "2", "translatedLanguage": "en"},
			 "relationships": [
				{"id": "g1", "type": "scanlation_group", "attributes": {"name": "Group One"}}
			 ]}
		]}`)
	}))
	defer srv.Close()

	chapters, err := testClient(srv).GetChapters(context.Background(), "m1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"g1"}, chapters[0].GroupIDs)
	assert.Equal(t, []string{"Group One"}, chapters[0].GroupNames)
	assert.Equal(t, "2", chapters[0].Volume)
}

func TestGetMangaNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv).GetManga(context.Background(), "missing")
	assert.ErrorIs(t, err, data.ErrNotFound)
}

func TestRateLimitBudgetExhausted(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Retry-After", "0")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv).GetManga(context.Background(), "m1")
	assert.ErrorIs(t, err, data.ErrRateLimited)
	assert.Equal(t, rateLimitBudget, hits)
}

func TestGetPagesBuildsPrimaryAndFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"baseUrl": "https://node.example.org",
			"chapter": {"hash": "abc", "data": ["p1.png", "p2.png"], "dataSaver": ["s1.jpg", "s2.jpg"]}}`)
	}))
	defer srv.Close()

	md := testClient(srv)
	chapter := &data.Chapter{ID: "ch1"}

	pages, err := md.GetPages(context.Background(), chapter, false)
	assert.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Index)
	assert.Equal(t, "https://node.example.org/data/abc/p1.png", pages[0].URL)
	assert.Equal(t, "https://uploads.example.org/data/abc/p1.png", pages[0].FallbackURL)

	saver, err := md.GetPages(context.Background(), chapter, true)
	assert.NoError(t, err)
	assert.Equal(t, "https://node.example.org/data-saver/abc/s1.jpg", saver[0].URL)
}

func TestLoginStoresSessionToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			fmt.Fprint(w, `{"token": {"session": "tok-123"}}`)
			return
		}
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data": {"id": "m1", "attributes": {"title": {"en": "x"}}}}`)
	}))
	defer srv.Close()

	md := testClient(srv)
	err := md.Login(context.Background(), "user", "pass")
	assert.NoError(t, err)
	assert.Equal(t, "tok-123", md.Token())

	_, err = md.GetManga(context.Background(), "m1")
	assert.NoError(t, err)
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := testClient(srv).Login(context.Background(), "user", "wrong")
	var authErr *data.AuthError
	assert.True(t, errors.As(err, &authErr), "expected AuthError, got %v", err)
}

func TestGetFollowedMangaRequiresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := testClient(srv).GetFollowedManga(context.Background())
	var authErr *data.AuthError
	assert.True(t, errors.As(err, &authErr), "expected AuthError, got %v", err)
}
