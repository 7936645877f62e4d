package content

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// YouTube surfaces a recent upload from a channel as an autopost candidate.
// Auth is either an API key or a user OAuth access token; the key wins when
// both are set.
type YouTube struct {
	ChannelID   string
	APIKey      string
	AccessToken string

	// newService is swappable in tests.
	newService func(ctx context.Context) (*yt.Service, error)
}

const maxRecentUploads = 5

func (y *YouTube) service(ctx context.Context) (*yt.Service, error) {
	if y.newService != nil {
		return y.newService(ctx)
	}
	switch {
	case y.APIKey != "":
		return yt.NewService(ctx, option.WithAPIKey(y.APIKey))
	case y.AccessToken != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: y.AccessToken})
		return yt.NewService(ctx, option.WithTokenSource(ts))
	}
	return nil, fmt.Errorf("youtube source: no API key or access token configured")
}

func (y *YouTube) Next(ctx context.Context) (*Item, error) {
	if y.ChannelID == "" {
		return nil, nil
	}
	svc, err := y.service(ctx)
	if err != nil {
		return nil, err
	}
	res, err := svc.Search.List([]string{"snippet"}).
		ChannelId(y.ChannelID).
		Order("date").
		Type("video").
		MaxResults(maxRecentUploads).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	var candidates []*Item
	for _, r := range res.Items {
		if r.Id == nil || r.Id.VideoId == "" || r.Snippet == nil {
			continue
		}
		candidates = append(candidates, &Item{
			Title:  r.Snippet.Title,
			URL:    "https://www.youtube.com/watch?v=" + r.Id.VideoId,
			Source: "youtube",
		})
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	//nolint:gosec // G404: math/rand is sufficient for content rotation, not used for security
	return candidates[rand.Intn(len(candidates))], nil
}
