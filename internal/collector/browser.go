package collector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Browser collects videos by driving a headless Chrome session against the
// public web UI. The source actively defends against automation, so every
// page visit applies jittered delays and the login modal is dismissed before
// scraping. Requires Chrome/Chromium on the system.
type Browser struct {
	headless    bool
	maxComments int
	pageTimeout time.Duration
}

// NewBrowser creates a browser-backed collector. maxComments caps how many
// comments are scraped per video.
func NewBrowser(headless bool, maxComments int) *Browser {
	return &Browser{
		headless:    headless,
		maxComments: maxComments,
		pageTimeout: 60 * time.Second,
	}
}

const detailRetries = 2

// Collect implements Collector. Each call launches a fresh browser, so the
// sequence is restartable with no shared cursor state.
func (b *Browser) Collect(ctx context.Context, keyword string, maxResults int) iter.Seq2[*RawVideo, error] {
	return func(yield func(*RawVideo, error) bool) {
		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
			append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", b.headless),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("no-sandbox", true),
				chromedp.Flag("disable-dev-shm-usage", true),
				chromedp.Flag("disable-blink-features", "AutomationControlled"),
			)...,
		)
		defer cancelAlloc()

		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
		defer cancelBrowser()

		urls, err := b.search(browserCtx, keyword)
		if err != nil {
			yield(nil, err)
			return
		}
		if len(urls) > maxResults {
			urls = urls[:maxResults]
		}

		for _, u := range urls {
			if ctx.Err() != nil {
				return
			}
			if ExtractVideoID(u) == "" {
				continue
			}
			video, err := b.fetchDetail(browserCtx, u)
			if err != nil {
				if errors.Is(err, ErrBlocked) {
					yield(nil, ErrBlocked)
					return
				}
				if !yield(nil, &PartialItemError{URL: u, Cause: err}) {
					return
				}
				continue
			}
			video.ExternalID = ExtractVideoID(u)
			if !yield(video, nil) {
				return
			}
		}
	}
}

// search runs a keyword search and returns candidate video URLs in discovery
// order. Falls back to the hashtag page when the search page yields nothing,
// which happens when the search surface is gated behind login.
func (b *Browser) search(browserCtx context.Context, keyword string) ([]string, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.pageTimeout)
	defer cancelTimeout()

	searchURL := "https://www.tiktok.com/search?q=" + url.QueryEscape(keyword)

	var hrefs []string
	var title, content string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(searchURL),
		chromedp.Sleep(3*time.Second),
		dismissLoginModal(),
		chromedp.Evaluate(`window.scrollTo(0, 500)`, nil),
		chromedp.Sleep(2*time.Second),
		bestEffort(chromedp.WaitVisible(`a[href*="/video/"]`, chromedp.ByQuery), 15*time.Second),
		chromedp.Evaluate(videoLinksJS, &hrefs),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &content),
	)
	if err != nil {
		return nil, fmt.Errorf("search navigation failed: %w", err)
	}

	links := dedupeLinks(hrefs)

	if len(links) == 0 {
		// Hashtag page fallback: same content surface, different gate.
		tag := strings.ReplaceAll(keyword, " ", "")
		tagURL := "https://www.tiktok.com/tag/" + url.PathEscape(tag)

		err := chromedp.Run(tabCtx,
			chromedp.Navigate(tagURL),
			chromedp.Sleep(2*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, 500)`, nil),
			chromedp.Sleep(2*time.Second),
			bestEffort(chromedp.WaitVisible(`a[href*="/video/"]`, chromedp.ByQuery), 15*time.Second),
			chromedp.Evaluate(videoLinksJS, &hrefs),
		)
		if err != nil {
			return nil, fmt.Errorf("hashtag fallback failed: %w", err)
		}
		links = dedupeLinks(hrefs)
	}

	if len(links) == 0 && pageLooksBlocked(title, content) {
		return nil, ErrBlocked
	}
	return links, nil
}

// fetchDetail scrapes a single video page: metadata from the embedded state
// JSON with DOM fallbacks, a screenshot, and up to maxComments comments.
func (b *Browser) fetchDetail(browserCtx context.Context, videoURL string) (*RawVideo, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.pageTimeout)
	defer cancelTimeout()

	var html, title string
	var screenshot []byte

	for attempt := 0; ; attempt++ {
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(videoURL),
			chromedp.Sleep(jitter(2*time.Second, 5*time.Second)),
			dismissLoginModal(),
			chromedp.CaptureScreenshot(&screenshot),
			chromedp.Evaluate(`window.scrollTo(0, 500)`, nil),
			chromedp.Sleep(3*time.Second),
			chromedp.Title(&title),
			chromedp.OuterHTML("html", &html),
		)
		if err != nil {
			if attempt >= detailRetries {
				return nil, fmt.Errorf("detail navigation failed: %w", err)
			}
			continue
		}
		if pageLooksBlocked(title, html) {
			if attempt >= detailRetries {
				return nil, ErrBlocked
			}
			// Captcha pages sometimes clear themselves after a pause.
			select {
			case <-time.After(5 * time.Second):
			case <-tabCtx.Done():
				return nil, tabCtx.Err()
			}
			continue
		}
		break
	}

	video := &RawVideo{URL: videoURL}
	if len(screenshot) > 0 {
		video.ScreenshotRef = base64.StdEncoding.EncodeToString(screenshot)
	}

	extractFromStateJSON(html, video)
	applyDOMFallbacks(html, title, video, b.maxComments)

	return video, nil
}

// videoLinksJS collects video link hrefs from the current page.
const videoLinksJS = `Array.from(document.querySelectorAll('a[href*="/video/"]')).map(a => a.href)`

// loginModalSelectors are the close buttons the login wall has been observed
// to use, tried in order.
var loginModalSelectors = []string{
	`[data-e2e="modal-close-inner-button"]`,
	`[data-e2e="modal-close"]`,
	`button[aria-label="Close"]`,
	`div[role="dialog"] button`,
	`#login-modal-close`,
}

// dismissLoginModal tries several strategies to clear the login wall:
// Escape first, then each known close button. All steps are best effort.
func dismissLoginModal() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_ = chromedp.KeyEvent(kb.Escape).Do(ctx)
		for _, sel := range loginModalSelectors {
			tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			_ = chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible).Do(tctx)
			cancel()
		}
		return nil
	})
}

// bestEffort runs an action under its own timeout and swallows the error.
func bestEffort(a chromedp.Action, timeout time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		_ = a.Do(tctx)
		return nil
	})
}

func pageLooksBlocked(title, content string) bool {
	return strings.Contains(strings.ToLower(title), "verify") ||
		strings.Contains(strings.ToLower(content), "captcha")
}

func dedupeLinks(hrefs []string) []string {
	seen := make(map[string]bool, len(hrefs))
	var links []string
	for _, h := range hrefs {
		if h == "" || !strings.Contains(h, "/video/") || seen[h] {
			continue
		}
		seen[h] = true
		links = append(links, h)
	}
	return links
}

// jitter returns a random duration in [min, max) to mimic human pacing.
func jitter(min, max time.Duration) time.Duration {
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
