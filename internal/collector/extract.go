package collector

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The video page embeds its full item state as JSON in one of two script
// tags depending on the frontend build. Both are tried before falling back
// to meta tags and the DOM.
var (
	sigiStatePattern     = regexp.MustCompile(`<script id="SIGI_STATE" type="application/json">(.*?)</script>`)
	universalDataPattern = regexp.MustCompile(`<script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">(.*?)</script>`)
)

type itemStats struct {
	PlayCount    int64 `json:"playCount"`
	DiggCount    int64 `json:"diggCount"`
	ShareCount   int64 `json:"shareCount"`
	CommentCount int64 `json:"commentCount"`
}

type itemChallenge struct {
	Title string `json:"title"`
}

type sigiItem struct {
	Desc       string          `json:"desc"`
	Author     string          `json:"author"`
	Stats      itemStats       `json:"stats"`
	Challenges []itemChallenge `json:"challenges"`
}

type sigiState struct {
	ItemModule map[string]sigiItem `json:"ItemModule"`
}

type universalData struct {
	DefaultScope struct {
		VideoDetail struct {
			ItemInfo struct {
				ItemStruct struct {
					Desc   string `json:"desc"`
					Author struct {
						Nickname string `json:"nickname"`
					} `json:"author"`
					Stats      itemStats       `json:"stats"`
					Challenges []itemChallenge `json:"challenges"`
				} `json:"itemStruct"`
			} `json:"itemInfo"`
		} `json:"webapp.video-detail"`
	} `json:"__DEFAULT_SCOPE__"`
}

// extractFromStateJSON fills video fields from the embedded state JSON.
// Missing or unparseable state is not an error; DOM fallbacks run after.
func extractFromStateJSON(html string, video *RawVideo) {
	if m := sigiStatePattern.FindStringSubmatch(html); m != nil {
		var state sigiState
		if err := json.Unmarshal([]byte(m[1]), &state); err == nil {
			for _, item := range state.ItemModule {
				applyItem(video, item.Desc, item.Author, item.Stats, item.Challenges)
				return
			}
		}
	}

	if video.Description != "" {
		return
	}

	if m := universalDataPattern.FindStringSubmatch(html); m != nil {
		var data universalData
		if err := json.Unmarshal([]byte(m[1]), &data); err == nil {
			item := data.DefaultScope.VideoDetail.ItemInfo.ItemStruct
			if item.Desc != "" || item.Author.Nickname != "" {
				applyItem(video, item.Desc, item.Author.Nickname, item.Stats, item.Challenges)
			}
		}
	}
}

func applyItem(video *RawVideo, desc, author string, stats itemStats, challenges []itemChallenge) {
	video.Description = desc
	video.Author = author
	video.Views = stats.PlayCount
	video.Likes = stats.DiggCount
	video.Shares = stats.ShareCount
	video.CommentTotal = stats.CommentCount
	for _, c := range challenges {
		if c.Title != "" {
			video.Hashtags = append(video.Hashtags, c.Title)
		}
	}
}

// applyDOMFallbacks fills any fields the state JSON did not provide, reading
// the rendered DOM, and scrapes comments (always DOM-based).
func applyDOMFallbacks(html, title string, video *RawVideo, maxComments int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}

	if video.Description == "" {
		if content, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && content != "" {
			// Strip the "... on TikTok" suffix the meta tag carries.
			video.Description = strings.SplitN(content, " on TikTok", 2)[0]
		}
	}
	if video.Description == "" && title != "" {
		if idx := strings.Index(title, "|"); idx > 0 {
			video.Description = strings.TrimSpace(title[:idx])
		} else {
			video.Description = title
		}
	}
	if video.Description == "" {
		if desc := doc.Find(`[data-e2e="browse-video-desc"]`).First(); desc.Length() > 0 {
			video.Description = strings.TrimSpace(desc.Text())
		} else {
			video.Description = strings.TrimSpace(doc.Find("h1").First().Text())
		}
	}

	if video.Author == "" {
		author := doc.Find(`[data-e2e="browse-user-detail"] h3`).First()
		if author.Length() == 0 {
			author = doc.Find(`span[data-e2e="browse-username"]`).First()
		}
		video.Author = strings.TrimSpace(author.Text())
	}

	if len(video.Hashtags) == 0 {
		doc.Find(`a[href*="/tag/"]`).Each(func(_ int, s *goquery.Selection) {
			if tag := strings.TrimSpace(s.Text()); tag != "" {
				video.Hashtags = append(video.Hashtags, tag)
			}
		})
	}

	video.Comments = extractComments(doc, maxComments)
}

// extractComments scrapes top-level comments from the rendered page. The
// comment author is not exposed on this surface, only the text.
func extractComments(doc *goquery.Document, maxComments int) []RawComment {
	var comments []RawComment

	add := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" || strings.Contains(text, "trouble playing") {
			return
		}
		comments = append(comments, RawComment{Text: text})
	}

	doc.Find(`[data-e2e="comment-level-1"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Find(`p[data-e2e="comment-level-1__content"]`).First()
		if text.Length() == 0 {
			text = s.Find("p").First()
		}
		add(text.Text())
		return len(comments) < maxComments
	})

	if len(comments) == 0 {
		// Last resort: plausible comment-length paragraphs anywhere on the page.
		doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := strings.TrimSpace(s.Text()); len(t) > 5 && len(t) < 200 {
				add(t)
			}
			return len(comments) < maxComments
		})
	}

	return comments
}
