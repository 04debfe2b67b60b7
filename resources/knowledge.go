package resources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aranyahq/aranya-go/api"
)

// Hub is one knowledge-hub category.
type Hub struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Article is one knowledge-hub article.
type Article struct {
	ID      int64  `json:"id"`
	HubID   int64  `json:"k_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ArticleFilter narrows an article listing. Zero values mean no filter.
type ArticleFilter struct {
	HubID  int64
	Search string
}

// Knowledge accesses the knowledge-hub endpoints.
type Knowledge struct {
	client *api.Client
}

func NewKnowledge(client *api.Client) *Knowledge {
	return &Knowledge{client: client}
}

// Hubs lists the knowledge-hub categories.
func (k *Knowledge) Hubs(ctx context.Context) ([]Hub, error) {
	var hubs []Hub
	if err := k.client.Get(ctx, "/knowledge-hub/", &hubs); err != nil {
		return nil, fmt.Errorf("list knowledge hubs: %w", err)
	}
	return hubs, nil
}

// Articles lists articles matching the filter.
func (k *Knowledge) Articles(ctx context.Context, filter ArticleFilter) ([]Article, error) {
	query := url.Values{}
	if filter.HubID != 0 {
		query.Set("k_id", strconv.FormatInt(filter.HubID, 10))
	}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}

	var options []api.RequestOption
	if len(query) > 0 {
		options = append(options, api.WithQuery(query))
	}

	var articles []Article
	if err := k.client.Get(ctx, "/articles", &articles, options...); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}
