// File: internal/content/content.go

// Package content fetches the publish feed and selects the next unposted
// item. Item identity is the normalized (whitespace-trimmed) description,
// compared exactly; there is no fuzzy matching.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagepress/internal/ledger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrFeedFetch indicates the feed document could not be retrieved or parsed.
// There is nothing to select from, so the run aborts.
var ErrFeedFetch = errors.New("content: feed fetch failed")

// Item is one entry in the content feed. Description carries HTML.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Key returns the item's identity: the trimmed description.
func (i Item) Key() string { return strings.TrimSpace(i.Description) }

// FetchFeed retrieves and decodes the feed document. The feed is immutable
// for the duration of a run; callers fetch once and pass the slice around.
func FetchFeed(ctx context.Context, client *http.Client, url string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d from %s", ErrFeedFetch, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFeedFetch, err)
	}

	var items []Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: decoding feed: %v", ErrFeedFetch, err)
	}
	return items, nil
}

// SelectNext scans the feed in order and returns the first item whose
// normalized, non-empty description is absent from the history. Returns nil
// when the feed is exhausted; a nil result is the workflow's "nothing to
// do", not an error. This linear scan is what makes repeated runs
// idempotent, so the posted set is rebuilt from history on every call.
func SelectNext(feed []Item, history []ledger.Entry) *Item {
	posted := make(map[string]struct{}, len(history))
	for _, e := range history {
		posted[strings.TrimSpace(e.Description)] = struct{}{}
	}

	for _, item := range feed {
		key := item.Key()
		if key == "" {
			continue
		}
		if _, seen := posted[key]; !seen {
			selected := item
			return &selected
		}
	}
	return nil
}
