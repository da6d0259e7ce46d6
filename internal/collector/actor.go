package collector

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Actor collects videos through a managed scraping actor service. The actor
// handles search execution and anti-automation evasion itself, at per-item
// cost; its datasets carry no comments or screenshots.
type Actor struct {
	client *resty.Client
	token  string
}

// NewActor creates an actor-backed collector talking to the given service
// base URL.
func NewActor(baseURL, token string) *Actor {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(2 * time.Minute).
		SetHeader("Accept", "application/json")

	return &Actor{client: client, token: token}
}

// actorItem is the actor's dataset item shape.
type actorItem struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	WebVideoURL string `json:"webVideoUrl"`
	AuthorMeta  struct {
		Name string `json:"name"`
	} `json:"authorMeta"`
	PlayCount    int64 `json:"playCount"`
	DiggCount    int64 `json:"diggCount"`
	ShareCount   int64 `json:"shareCount"`
	CommentCount int64 `json:"commentCount"`
	Hashtags     []struct {
		Name string `json:"name"`
	} `json:"hashtags"`
}

// Collect implements Collector. The actor runs the whole search server-side,
// so the sequence is materialized by a single synchronous run call and then
// yielded item by item.
func (a *Actor) Collect(ctx context.Context, keyword string, maxResults int) iter.Seq2[*RawVideo, error] {
	return func(yield func(*RawVideo, error) bool) {
		items, err := a.runSearch(ctx, keyword, maxResults)
		if err != nil {
			yield(nil, err)
			return
		}

		count := 0
		for i := range items {
			if ctx.Err() != nil {
				return
			}
			if count >= maxResults {
				return
			}
			video := normalizeActorItem(&items[i])
			if video.ExternalID == "" {
				continue
			}
			if !yield(video, nil) {
				return
			}
			count++
		}
	}
}

func (a *Actor) runSearch(ctx context.Context, keyword string, maxResults int) ([]actorItem, error) {
	var items []actorItem
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("token", a.token).
		SetBody(map[string]any{
			"searchQueries":  []string{keyword},
			"resultsPerPage": maxResults,
		}).
		SetResult(&items).
		Post("/run-sync-get-dataset-items")
	if err != nil {
		return nil, fmt.Errorf("actor request failed: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode() == http.StatusPaymentRequired,
		resp.StatusCode() == http.StatusForbidden,
		resp.StatusCode() == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: actor returned status %d", ErrBlocked, resp.StatusCode())
	case resp.IsError():
		return nil, fmt.Errorf("actor returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return items, nil
}

// normalizeActorItem maps the actor's dataset shape onto RawVideo. The
// external ID comes from the actor's id field, with the URL parsing rule as
// fallback.
func normalizeActorItem(item *actorItem) *RawVideo {
	video := &RawVideo{
		ExternalID:   item.ID,
		URL:          item.WebVideoURL,
		Author:       item.AuthorMeta.Name,
		Description:  item.Text,
		Views:        item.PlayCount,
		Likes:        item.DiggCount,
		Shares:       item.ShareCount,
		CommentTotal: item.CommentCount,
	}
	if video.ExternalID == "" {
		video.ExternalID = ExtractVideoID(item.WebVideoURL)
	}
	for _, h := range item.Hashtags {
		if h.Name != "" {
			video.Hashtags = append(video.Hashtags, h.Name)
		}
	}
	return video
}
