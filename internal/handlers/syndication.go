package handlers

import (
	"fmt"
	"net/http"
	"time"

	"devnewz/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
)

const rssItems = 30

// SyndicationHandler serves the public RSS feed and robots.txt.
type SyndicationHandler struct {
	posts    *services.PostService
	siteName string
	siteURL  string
}

func NewSyndicationHandler(posts *services.PostService, siteName, siteURL string) *SyndicationHandler {
	return &SyndicationHandler{posts: posts, siteName: siteName, siteURL: siteURL}
}

// RSSFeed 生成 RSS 2.0 feed，最新的文章在前
func (h *SyndicationHandler) RSSFeed(c *gin.Context) {
	items, err := h.posts.Newest(c.Request.Context(), 0)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(items) > rssItems {
		items = items[:rssItems]
	}

	feed := &feeds.Feed{
		Title:       h.siteName,
		Link:        &feeds.Link{Href: h.siteURL},
		Description: h.siteName + " newest submissions",
		Created:     time.Now(),
	}
	for _, item := range items {
		discussion := fmt.Sprintf("%s/news/%d", h.siteURL, item.ID)
		link := discussion
		if item.URL != nil {
			link = *item.URL
		}
		// RSS <author> must be an email address; usernames stay in the description.
		feed.Items = append(feed.Items, &feeds.Item{
			Title: item.Title,
			Link:  &feeds.Link{Href: link},
			Id:    discussion,
			Description: fmt.Sprintf("%d points by %s | %d comments",
				item.Upvotes-item.Downvotes, item.Username, item.CommentCount),
			Created: item.CreatedAt,
		})
	}

	out, err := feed.ToRss()
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(out))
}

// RobotsTxt keeps crawlers off the API except the public feed.
func (h *SyndicationHandler) RobotsTxt(c *gin.Context) {
	c.String(http.StatusOK, "User-agent: *\nAllow: /rss\nDisallow: /api/\n\nCrawl-delay: 1\n")
}
