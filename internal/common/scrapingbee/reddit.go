// internal/common/scrapingbee/reddit.go
package scrapingbee

import (
	"context"
	"net/url"
	"strings"
)

const redditBaseURL = "https://www.reddit.com"

type RedditCommunity struct {
	Name    string      `json:"name"`
	Summary string      `json:"summary"`
	Href    string      `json:"href"`
	// Members and Online are numbers or display strings such as "1.2k".
	Members interface{} `json:"members,omitempty"`
	Online  interface{} `json:"online,omitempty"`
}

type RedditCommunityPost struct {
	Title   string `json:"title"`
	Href    string `json:"href"`
	Summary string `json:"summary"`
	Author  string `json:"author,omitempty"`
}

type RedditSearchResult struct {
	Title string `json:"title"`
	Href  string `json:"href"`
}

// extracted is the json_response envelope around extract_rules output.
type extracted[T any] struct {
	Body struct {
		Data []T `json:"data"`
	} `json:"body"`
	Headers map[string]string `json:"headers"`
}

var scrollScenario = map[string]interface{}{
	"instructions": []map[string]int{
		{"wait": 1000},
		{"scroll_y": 10000},
		{"wait": 1000},
	},
}

// Reddit scrapes Reddit pages through ScrapingBee.
type Reddit struct {
	client  *Client
	baseURL string
}

func NewReddit(client *Client) *Reddit {
	return &Reddit{client: client, baseURL: redditBaseURL}
}

func (r *Reddit) ListCommunities(ctx context.Context, query string) ([]RedditCommunity, error) {
	target := r.baseURL + "/search/?q=" + url.QueryEscape(query) + "&type=communities"
	params := Params{
		"render_js": false,
		"extract_rules": map[string]interface{}{
			"data": map[string]interface{}{
				"selector": "div[data-testid='search-community']",
				"type":     "list",
				"output": map[string]interface{}{
					"name":    "h2 > span[id^='search-community-title-']",
					"summary": "p[data-testid='search-subreddit-desc-text']",
					"href":    map[string]string{"selector": "a[href^='/r/']", "output": "@href"},
					"members": map[string]string{
						"selector": "div.text-12.text-neutral-content-weak faceplate-number:nth-of-type(1)",
						"output":   "@number",
					},
					"online": map[string]string{
						"selector": "div.text-12.text-neutral-content-weak faceplate-number:nth-of-type(2)",
						"output":   "@number",
					},
				},
			},
		},
	}

	var resp extracted[RedditCommunity]
	if err := r.client.GetJSON(ctx, target, params, &resp); err != nil {
		return nil, err
	}
	return resp.Body.Data, nil
}

// LatestPosts scrolls the community feed and returns the posts it rendered.
// community is either "r/name" or "name".
func (r *Reddit) LatestPosts(ctx context.Context, community string) ([]RedditCommunityPost, error) {
	target := r.baseURL + "/" + communityPath(community) + "/"
	params := Params{
		"js_scenario": scrollScenario,
		"wait":        100,
		"extract_rules": map[string]interface{}{
			"data": map[string]interface{}{
				"selector": "shreddit-feed article",
				"type":     "list",
				"output": map[string]interface{}{
					"title":   map[string]string{"selector": "a[slot='title']"},
					"href":    map[string]string{"selector": "a[slot='full-post-link']", "output": "@href"},
					"author":  map[string]string{"selector": "a[href^='/user/']"},
					"summary": map[string]string{"selector": "div[property='schema:articleBody']"},
				},
			},
		},
	}

	var resp extracted[RedditCommunityPost]
	if err := r.client.GetJSON(ctx, target, params, &resp); err != nil {
		return nil, err
	}
	return resp.Body.Data, nil
}

func (r *Reddit) Search(ctx context.Context, query, community string) ([]RedditSearchResult, error) {
	target := r.baseURL + "/" + communityPath(community) + "/search/?q=" + url.QueryEscape(query)
	params := Params{
		"render_js": false,
		"extract_rules": map[string]interface{}{
			"data": map[string]interface{}{
				"selector": "div[data-testid='search-post-unit']",
				"type":     "list",
				"output": map[string]interface{}{
					"title": map[string]string{"selector": "a[data-testid='post-title']"},
					"href":  map[string]string{"selector": "a[data-testid='post-title']", "output": "@href"},
				},
			},
		},
	}

	var resp extracted[RedditSearchResult]
	if err := r.client.GetJSON(ctx, target, params, &resp); err != nil {
		return nil, err
	}
	return resp.Body.Data, nil
}

func (r *Reddit) PostMarkdown(ctx context.Context, community, postID string) (string, error) {
	return r.PageMarkdown(ctx, r.baseURL+"/"+communityPath(community)+"/comments/"+postID)
}

// PageMarkdown renders any page as markdown.
func (r *Reddit) PageMarkdown(ctx context.Context, target string) (string, error) {
	data, err := r.client.Get(ctx, target, Params{
		"js_scenario":          scrollScenario,
		"wait":                 100,
		"return_page_markdown": true,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func communityPath(community string) string {
	community = strings.Trim(community, "/")
	if strings.HasPrefix(community, "r/") {
		return community
	}
	return "r/" + community
}
