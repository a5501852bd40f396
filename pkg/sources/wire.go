package sources

import (
	"fmt"
	"time"

	"github.com/kerbaras/mangadex-dl/pkg/data"
)

// Wire shapes of the MangaDex API, mapped into the data model.

type mangaJSON struct {
	ID         string `json:"id"`
	Attributes struct {
		Title                        map[string]string `json:"title"`
		Description                  map[string]string `json:"description"`
		AvailableTranslatedLanguages []string          `json:"availableTranslatedLanguages"`
		Tags                         []tagJSON         `json:"tags"`
	} `json:"attributes"`
	Relationships []relationshipJSON `json:"relationships"`
}

type tagJSON struct {
	Attributes struct {
		Name map[string]string `json:"name"`
	} `json:"attributes"`
}

type relationshipJSON struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name     string `json:"name"`
		FileName string `json:"fileName"`
	} `json:"attributes"`
}

type chapterJSON struct {
	ID         string `json:"id"`
	Attributes struct {
		Title              string    `json:"title"`
		Volume             string    `json:"volume"`
		Chapter            string    `json:"chapter"`
		TranslatedLanguage string    `json:"translatedLanguage"`
		Pages              int       `json:"pages"`
		PublishAt          time.Time `json:"publishAt"`
		ExternalURL        string    `json:"externalUrl"`
	} `json:"attributes"`
	Relationships []relationshipJSON `json:"relationships"`
}

func (m *mangaJSON) toManga(uploadsURL string) *data.Manga {
	out := &data.Manga{
		ID:          m.ID,
		Title:       preferredText(m.Attributes.Title),
		Description: preferredText(m.Attributes.Description),
		Languages:   m.Attributes.AvailableTranslatedLanguages,
	}
	for _, tag := range m.Attributes.Tags {
		name := preferredText(tag.Attributes.Name)
		out.Tags = append(out.Tags, name)
		if name == "Oneshot" {
			out.Oneshot = true
		}
	}
	for _, rel := range m.Relationships {
		if rel.Type == "cover_art" && rel.Attributes.FileName != "" {
			out.CoverURL = fmt.Sprintf("%s/covers/%s/%s", uploadsURL, m.ID, rel.Attributes.FileName)
		}
	}
	return out
}

func (c *chapterJSON) toChapter(mangaID string) *data.Chapter {
	out := &data.Chapter{
		ID:          c.ID,
		MangaID:     mangaID,
		Title:       c.Attributes.Title,
		Language:    c.Attributes.TranslatedLanguage,
		Volume:      c.Attributes.Volume,
		Number:      c.Attributes.Chapter,
		Pages:       c.Attributes.Pages,
		PublishedAt: c.Attributes.PublishAt,
		External:    c.Attributes.ExternalURL != "",
	}
	for _, rel := range c.Relationships {
		switch rel.Type {
		case "scanlation_group":
			out.GroupIDs = append(out.GroupIDs, rel.ID)
			out.GroupNames = append(out.GroupNames, rel.Attributes.Name)
		case "manga":
			if out.MangaID == "" {
				out.MangaID = rel.ID
			}
		}
	}
	return out
}

// preferredText picks the English entry from a localized string map,
// falling back to whatever is present.
func preferredText(localized map[string]string) string {
	if s, ok := localized["en"]; ok && s != "" {
		return s
	}
	for _, s := range localized {
		if s != "" {
			return s
		}
	}
	return ""
}
