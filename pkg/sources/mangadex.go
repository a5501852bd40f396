package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL    = "https://api.mangadex.org"
	defaultUploadsURL = "https://uploads.mangadex.org"

	// The feed endpoint caps page size at 500.
	feedPageLimit = 500

	// How many 429 responses we tolerate per request before giving up.
	rateLimitBudget = 5
)

type MangaDex struct {
	client     *http.Client
	baseURL    string
	uploadsURL string
	limiter    *rate.Limiter
	token      string
}

func NewMangaDex() *MangaDex {
	return NewMangaDexWithClient(http.DefaultClient)
}

func NewMangaDexWithClient(client *http.Client) *MangaDex {
	return &MangaDex{
		client:     client,
		baseURL:    defaultBaseURL,
		uploadsURL: defaultUploadsURL,
		limiter:    rate.NewLimiter(rate.Limit(5), 1), // 5 req/sec, MangaDex global limit
	}
}

// Token returns the current session token, empty when anonymous.
func (m *MangaDex) Token() string { return m.token }

func (m *MangaDex) do(ctx context.Context, method, path string, params url.Values, body, v any) error {
	u := m.baseURL + path
	if params != nil {
		u += "?" + params.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		if m.token != "" {
			req.Header.Set("Authorization", "Bearer "+m.token)
		}

		resp, err := m.client.Do(req)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if attempt+1 >= rateLimitBudget {
				return fmt.Errorf("%s: %w", path, data.ErrRateLimited)
			}
			if err := sleepCtx(ctx, retryAfter(resp, attempt)); err != nil {
				return err
			}
			continue
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return fmt.Errorf("%s: %w", path, data.ErrNotFound)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return &data.AuthError{Reason: fmt.Sprintf("%s returned %s", path, resp.Status)}
		case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
			resp.Body.Close()
			return fmt.Errorf("%s returned %s", path, resp.Status)
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		return err
	}
}

func (m *MangaDex) get(ctx context.Context, path string, params url.Values, v any) error {
	return m.do(ctx, http.MethodGet, path, params, nil, v)
}

// retryAfter honors the server's Retry-After header, falling back to a
// growing delay.
func retryAfter(resp *http.Response, attempt int) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(attempt+1) * 2 * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Login exchanges credentials for a session token used on later calls.
func (m *MangaDex) Login(ctx context.Context, username, password string) error {
	var result struct {
		Token struct {
			Session string `json:"session"`
		} `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := m.do(ctx, http.MethodPost, "/auth/login", nil, body, &result); err != nil {
		return err
	}
	if result.Token.Session == "" {
		return &data.AuthError{Reason: "login response carried no session token"}
	}
	m.token = result.Token.Session
	return nil
}

func (m *MangaDex) GetManga(ctx context.Context, id string) (*data.Manga, error) {
	var result struct {
		Data mangaJSON `json:"data"`
	}
	params := url.Values{}
	params.Add("includes[]", "cover_art")
	if err := m.get(ctx, "/manga/"+id, params, &result); err != nil {
		return nil, err
	}
	return result.Data.toManga(m.uploadsURL), nil
}

// GetChapters walks the paginated chapter feed until exhaustion and
// returns every chapter in server order. Filtering happens later, in
// the planner, so the plan always sees the full candidate set.
func (m *MangaDex) GetChapters(ctx context.Context, mangaID string) ([]data.Chapter, error) {
	var chapters []data.Chapter
	offset := 0
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(feedPageLimit))
		params.Set("offset", strconv.Itoa(offset))
		params.Add("includes[]", "scanlation_group")

		var feed struct {
			Data  []chapterJSON `json:"data"`
			Total int           `json:"total"`
		}
		if err := m.get(ctx, "/manga/"+mangaID+"/feed", params, &feed); err != nil {
			return nil, err
		}
		for i := range feed.Data {
			chapters = append(chapters, *feed.Data[i].toChapter(mangaID))
		}

		offset += len(feed.Data)
		if len(feed.Data) == 0 || offset >= feed.Total {
			return chapters, nil
		}
	}
}

func (m *MangaDex) GetChapter(ctx context.Context, id string) (*data.Chapter, error) {
	var result struct {
		Data chapterJSON `json:"data"`
	}
	params := url.Values{}
	params.Add("includes[]", "scanlation_group")
	if err := m.get(ctx, "/chapter/"+id, params, &result); err != nil {
		return nil, err
	}
	return result.Data.toChapter(""), nil
}

// GetPages resolves the chapter's page server and builds one Page per
// image, with the permanent uploads host as fallback mirror. dataSaver
// selects the compressed variants.
func (m *MangaDex) GetPages(ctx context.Context, chapter *data.Chapter, dataSaver bool) ([]data.Page, error) {
	var server struct {
		BaseURL string `json:"baseUrl"`
		Chapter struct {
			Hash      string   `json:"hash"`
			Data      []string `json:"data"`
			DataSaver []string `json:"dataSaver"`
		} `json:"chapter"`
	}
	if err := m.get(ctx, "/at-home/server/"+chapter.ID, nil, &server); err != nil {
		return nil, err
	}

	quality := "data"
	files := server.Chapter.Data
	if dataSaver {
		quality = "data-saver"
		files = server.Chapter.DataSaver
	}

	pages := make([]data.Page, len(files))
	for i, file := range files {
		pages[i] = data.Page{
			ChapterID:   chapter.ID,
			Index:       i + 1,
			URL:         fmt.Sprintf("%s/%s/%s/%s", server.BaseURL, quality, server.Chapter.Hash, file),
			FallbackURL: fmt.Sprintf("%s/%s/%s/%s", m.uploadsURL, quality, server.Chapter.Hash, file),
		}
	}
	return pages, nil
}

// ResolveLegacy maps a pre-2021 numeric identifier to its UUID.
func (m *MangaDex) ResolveLegacy(ctx context.Context, kind data.RefKind, legacyID string) (string, error) {
	n, err := strconv.Atoi(legacyID)
	if err != nil {
		return "", &data.InvalidReferenceError{Input: legacyID}
	}

	var result struct {
		Data []struct {
			Attributes struct {
				NewID string `json:"newId"`
			} `json:"attributes"`
		} `json:"data"`
	}
	body := map[string]any{"type": string(kind), "ids": []int{n}}
	if err := m.do(ctx, http.MethodPost, "/legacy/mapping", nil, body, &result); err != nil {
		return "", err
	}
	if len(result.Data) == 0 {
		return "", fmt.Errorf("legacy id %s: %w", legacyID, data.ErrNotFound)
	}
	return result.Data[0].Attributes.NewID, nil
}

// GetListManga expands a public list into the manga IDs it contains.
func (m *MangaDex) GetListManga(ctx context.Context, listID string) ([]string, error) {
	var result struct {
		Data struct {
			Relationships []relationshipJSON `json:"relationships"`
		} `json:"data"`
	}
	if err := m.get(ctx, "/list/"+listID, nil, &result); err != nil {
		return nil, err
	}
	var ids []string
	for _, rel := range result.Data.Relationships {
		if rel.Type == "manga" {
			ids = append(ids, rel.ID)
		}
	}
	return ids, nil
}

// GetFollowedManga pages through the authenticated user's library.
func (m *MangaDex) GetFollowedManga(ctx context.Context) ([]data.Manga, error) {
	if m.token == "" {
		return nil, &data.AuthError{Reason: "library download requires login"}
	}

	var mangas []data.Manga
	offset := 0
	for {
		params := url.Values{}
		params.Set("limit", "100")
		params.Set("offset", strconv.Itoa(offset))
		params.Add("includes[]", "cover_art")

		var result struct {
			Data  []mangaJSON `json:"data"`
			Total int         `json:"total"`
		}
		if err := m.get(ctx, "/user/follows/manga", params, &result); err != nil {
			return nil, err
		}
		for i := range result.Data {
			mangas = append(mangas, *result.Data[i].toManga(m.uploadsURL))
		}

		offset += len(result.Data)
		if len(result.Data) == 0 || offset >= result.Total {
			return mangas, nil
		}
	}
}

// Search queries the catalog by title.
func (m *MangaDex) Search(ctx context.Context, query string) ([]data.Manga, error) {
	params := url.Values{}
	params.Set("title", query)
	params.Add("includes[]", "cover_art")

	var result struct {
		Data []mangaJSON `json:"data"`
	}
	if err := m.get(ctx, "/manga", params, &result); err != nil {
		return nil, err
	}
	out := make([]data.Manga, len(result.Data))
	for i := range result.Data {
		out[i] = *result.Data[i].toManga(m.uploadsURL)
	}
	return out, nil
}
