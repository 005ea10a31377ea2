package index

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"multitrack/logger"
	"multitrack/model"

	"github.com/machinebox/graphql"
)

// PageLimit caps every list query.
const PageLimit = 50

const publicationsQuery = `
query($request: PublicationsQueryRequest!) {
  publications(request: $request) {
    items {
      __typename
      ... on Post { id metadata { ...MetadataFields } }
      ... on Comment {
        id
        commentOn { ... on Post { id } ... on Comment { id } ... on Mirror { id } }
        metadata { ...MetadataFields }
      }
    }
  }
}
fragment MetadataFields on MetadataOutput {
  name
  description
  media { original { url mimeType } }
}`

const profilesQuery = `
query($request: ProfileQueryRequest!) {
  profiles(request: $request) { items { id name handle } }
}`

const followingQuery = `
query($request: FollowingRequest!) {
  following(request: $request) { items { profile { id name handle } } }
}`

// GraphQLClient reads the social graph's indexing API.
type GraphQLClient struct {
	client     *graphql.Client
	httpClient *http.Client
}

// NewGraphQLClient creates a client for the API at baseURL.
func NewGraphQLClient(baseURL string) *GraphQLClient {
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}
	return &GraphQLClient{
		client:     graphql.NewClient(strings.TrimRight(baseURL, "/"), graphql.WithHTTPClient(httpClient)),
		httpClient: httpClient,
	}
}

// SetTimeout changes the request timeout.
func (c *GraphQLClient) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

func (c *GraphQLClient) do(ctx context.Context, op, query string, request map[string]interface{}, out interface{}) error {
	req := graphql.NewRequest(query)
	req.Var("request", request)

	if err := c.client.Run(ctx, req, out); err != nil {
		logger.Error("["+op+"] 索引查询失败", logger.ErrorField(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type mediaSet struct {
	Original struct {
		URL      string `json:"url"`
		MimeType string `json:"mimeType"`
	} `json:"original"`
}

type publicationItem struct {
	Typename  string `json:"__typename"`
	ID        string `json:"id"`
	CommentOn *struct {
		ID string `json:"id"`
	} `json:"commentOn"`
	Metadata struct {
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Media       []mediaSet `json:"media"`
	} `json:"metadata"`
}

// record maps an indexer item. ok is false for items that are neither
// posts nor comments.
func (p publicationItem) record() (model.PublicationRecord, bool) {
	rec := model.PublicationRecord{
		ID:          p.ID,
		Title:       p.Metadata.Name,
		Description: p.Metadata.Description,
		MediaRefs:   make([]string, 0, len(p.Metadata.Media)),
	}
	for _, m := range p.Metadata.Media {
		if m.Original.URL != "" {
			rec.MediaRefs = append(rec.MediaRefs, m.Original.URL)
		}
	}
	switch p.Typename {
	case "Post":
		rec.Kind = model.KindOriginal
	case "Comment":
		rec.Kind = model.KindRemix
		if p.CommentOn != nil {
			rec.ParentID = p.CommentOn.ID
		}
	default:
		return rec, false
	}
	return rec, true
}

// Publications fetches a profile's posts and comments.
func (c *GraphQLClient) Publications(ctx context.Context, ownerID string) ([]model.PublicationRecord, error) {
	var out struct {
		Publications struct {
			Items []publicationItem `json:"items"`
		} `json:"publications"`
	}
	err := c.do(ctx, "Publications", publicationsQuery, map[string]interface{}{
		"profileId":        ownerID,
		"publicationTypes": []string{"POST", "COMMENT"},
		"limit":            PageLimit,
	}, &out)
	if err != nil {
		return nil, err
	}

	records := make([]model.PublicationRecord, 0, len(out.Publications.Items))
	for _, item := range out.Publications.Items {
		if rec, ok := item.record(); ok {
			records = append(records, rec)
		}
	}
	logger.Info("[Publications] 获取发布列表", logger.String("owner", ownerID), logger.Int("count", len(records)))
	return records, nil
}

// Profiles fetches the profiles owned by address.
func (c *GraphQLClient) Profiles(ctx context.Context, address string) ([]model.Profile, error) {
	var out struct {
		Profiles struct {
			Items []model.Profile `json:"items"`
		} `json:"profiles"`
	}
	err := c.do(ctx, "Profiles", profilesQuery, map[string]interface{}{
		"ownedBy": []string{address},
		"limit":   PageLimit,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Profiles.Items, nil
}

// Following fetches the profiles address follows.
func (c *GraphQLClient) Following(ctx context.Context, address string) ([]model.Profile, error) {
	var out struct {
		Following struct {
			Items []struct {
				Profile model.Profile `json:"profile"`
			} `json:"items"`
		} `json:"following"`
	}
	err := c.do(ctx, "Following", followingQuery, map[string]interface{}{
		"address": address,
		"limit":   PageLimit,
	}, &out)
	if err != nil {
		return nil, err
	}
	profiles := make([]model.Profile, 0, len(out.Following.Items))
	for _, item := range out.Following.Items {
		profiles = append(profiles, item.Profile)
	}
	return profiles, nil
}
