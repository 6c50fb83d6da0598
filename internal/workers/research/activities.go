package research

import (
	"context"
	"fmt"
	"time"

	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/scrapingbee"
	"signal-workflows/pkg/registry"
)

const (
	activityTimeout = 2 * time.Minute
	maxRetries      = 3
)

// Reddit is the part of the Reddit scraper the research activities use.
type Reddit interface {
	ListCommunities(ctx context.Context, query string) ([]scrapingbee.RedditCommunity, error)
	LatestPosts(ctx context.Context, community string) ([]scrapingbee.RedditCommunityPost, error)
	Search(ctx context.Context, query, community string) ([]scrapingbee.RedditSearchResult, error)
	PostMarkdown(ctx context.Context, community, postID string) (string, error)
	PageMarkdown(ctx context.Context, target string) (string, error)
}

var _ Reddit = (*scrapingbee.Reddit)(nil)

type QueryInput struct {
	Query string `json:"query" description:"Search query"`
}

type SubredditInput struct {
	Subreddit string `json:"subreddit" description:"Subreddit name, with or without the r/ prefix"`
}

type SearchInput struct {
	Query     string `json:"query" description:"Search query"`
	Subreddit string `json:"subreddit" description:"Subreddit name, with or without the r/ prefix"`
}

type PostInput struct {
	Subreddit string `json:"subreddit" description:"Subreddit name, with or without the r/ prefix"`
	PostID    string `json:"post_id" description:"Reddit post id"`
}

type URLInput struct {
	URL string `json:"url" description:"Page URL"`
}

// Activities scrape Reddit for demand research.
type Activities struct {
	FindSubreddits      *registry.Activity[QueryInput, []scrapingbee.RedditCommunity]
	GetLatestPosts      *registry.Activity[SubredditInput, []scrapingbee.RedditCommunityPost]
	SearchInSubreddit   *registry.Activity[SearchInput, []scrapingbee.RedditSearchResult]
	GetPostContent      *registry.Activity[PostInput, string]
	GetPostContentByURL *registry.Activity[URLInput, string]
}

type service struct {
	reddit Reddit
	logger logger.Logger
}

func NewActivities(reddit Reddit, log logger.Logger) *Activities {
	s := &service{
		reddit: reddit,
		logger: log.With(map[string]interface{}{"component": "research-activities"}),
	}
	opts := func(name, description string) registry.ActivityOptions {
		return registry.ActivityOptions{
			Name:                name,
			Description:         description,
			StartToCloseTimeout: activityTimeout,
			MaxRetries:          maxRetries,
		}
	}

	return &Activities{
		FindSubreddits: registry.MustDefineActivity(s.findSubreddits,
			opts("find_subreddits", "Find subreddits matching a query using Reddit search.")),
		GetLatestPosts: registry.MustDefineActivity(s.latestPosts,
			opts("get_latest_posts", "Get latest posts from a subreddit.")),
		SearchInSubreddit: registry.MustDefineActivity(s.searchInSubreddit,
			opts("search_in_subreddit", "Search for posts within a specific subreddit.")),
		GetPostContent: registry.MustDefineActivity(s.postContent,
			opts("get_post_content", "Get markdown content of a post.")),
		GetPostContentByURL: registry.MustDefineActivity(s.postContentByURL,
			opts("get_post_content_by_url", "Get markdown content from a URL.")),
	}
}

func (a *Activities) All() []registry.ActivityDefinition {
	return []registry.ActivityDefinition{
		a.FindSubreddits,
		a.GetLatestPosts,
		a.SearchInSubreddit,
		a.GetPostContent,
		a.GetPostContentByURL,
	}
}

func (s *service) findSubreddits(ctx context.Context, in QueryInput) ([]scrapingbee.RedditCommunity, error) {
	s.logger.Info("Finding subreddits", map[string]interface{}{"query": in.Query})
	return s.reddit.ListCommunities(ctx, in.Query)
}

func (s *service) latestPosts(ctx context.Context, in SubredditInput) ([]scrapingbee.RedditCommunityPost, error) {
	s.logger.Info("Getting latest posts", map[string]interface{}{"subreddit": in.Subreddit})
	return s.reddit.LatestPosts(ctx, in.Subreddit)
}

func (s *service) searchInSubreddit(ctx context.Context, in SearchInput) ([]scrapingbee.RedditSearchResult, error) {
	s.logger.Info("Searching subreddit", map[string]interface{}{
		"subreddit": in.Subreddit,
		"query":     in.Query,
	})
	return s.reddit.Search(ctx, in.Query, in.Subreddit)
}

func (s *service) postContent(ctx context.Context, in PostInput) (string, error) {
	s.logger.Info("Getting post content", map[string]interface{}{
		"subreddit": in.Subreddit,
		"postId":    in.PostID,
	})
	return s.reddit.PostMarkdown(ctx, in.Subreddit, in.PostID)
}

// postContentByURL hands fetch failures back as text so an agent can move on to the next source.
func (s *service) postContentByURL(ctx context.Context, in URLInput) (string, error) {
	s.logger.Info("Fetching page content", map[string]interface{}{"url": in.URL})
	content, err := s.reddit.PageMarkdown(ctx, in.URL)
	if err != nil {
		s.logger.Error("Page fetch failed", map[string]interface{}{
			"url":   in.URL,
			"error": err.Error(),
		})
		return fmt.Sprintf("Error fetching %s: %v", in.URL, err), nil
	}
	return content, nil
}

// Register adds every research activity to p.
func Register(p *registry.Provider, acts *Activities) error {
	for _, a := range acts.All() {
		if err := registry.RegisterActivity(p.Activities(), a); err != nil {
			return err
		}
	}
	return nil
}
