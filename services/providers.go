package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/resoul/shortsgen/config"
	"github.com/sirupsen/logrus"
)

const (
	pexelsBaseURL  = "https://api.pexels.com"
	pixabayBaseURL = "https://pixabay.com"

	searchTimeout   = 20 * time.Second
	downloadTimeout = 30 * time.Second

	clipsPerPage = 25
	minClipWidth = 1280
)

// ClipFetcher finds and downloads one stock clip for a search query,
// returning the path of a local temp file the caller must remove.
type ClipFetcher interface {
	FetchClip(ctx context.Context, query string) (string, error)
}

type clipSource interface {
	name() string
	fetch(ctx context.Context, query string) (string, error)
}

// ClipProviders tries each configured stock-footage provider in order and
// returns the first clip found.
type ClipProviders struct {
	sources []clipSource
	metrics *Metrics
}

func NewClipProviders(cfg config.ClipsConfig, metrics *Metrics) *ClipProviders {
	searchClient := &http.Client{Timeout: searchTimeout}
	downloadClient := &http.Client{Timeout: downloadTimeout}

	return &ClipProviders{
		metrics: metrics,
		sources: []clipSource{
			&pexelsClient{
				apiKey:   cfg.PexelsAPIKey,
				baseURL:  pexelsBaseURL,
				client:   searchClient,
				download: downloadClient,
				banned:   cfg.BannedTopics,
			},
			&pixabayClient{
				apiKey:   cfg.PixabayAPIKey,
				baseURL:  pixabayBaseURL,
				client:   searchClient,
				download: downloadClient,
				banned:   cfg.BannedTopics,
			},
		},
	}
}

func (p *ClipProviders) FetchClip(ctx context.Context, query string) (string, error) {
	for _, source := range p.sources {
		path, err := source.fetch(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logrus.WithError(err).WithField("provider", source.name()).Warn("Clip lookup failed")
			continue
		}
		if path != "" {
			p.metrics.ClipsFetched.WithLabelValues(source.name()).Inc()
			return path, nil
		}
	}
	return "", fmt.Errorf("no clip found for query %q", query)
}

type pexelsClient struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	download *http.Client
	banned   []string
}

type pexelsSearchResponse struct {
	Videos []pexelsVideo `json:"videos"`
}

type pexelsVideo struct {
	Description string            `json:"description"`
	Tags        []string          `json:"tags"`
	VideoFiles  []pexelsVideoFile `json:"video_files"`
}

type pexelsVideoFile struct {
	Width int    `json:"width"`
	Link  string `json:"link"`
}

func (c *pexelsClient) name() string { return "pexels" }

func (c *pexelsClient) fetch(ctx context.Context, query string) (string, error) {
	if c.apiKey == "" {
		return "", nil
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("orientation", "landscape")
	params.Set("per_page", strconv.Itoa(clipsPerPage))
	params.Set("page", strconv.Itoa(rand.Intn(3)+1))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/search?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pexels search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pexels search returned %d", resp.StatusCode)
	}

	var result pexelsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode pexels response: %w", err)
	}

	relevant := make([]pexelsVideo, 0, len(result.Videos))
	for _, video := range result.Videos {
		text := video.Description + " " + strings.Join(video.Tags, " ")
		if isRelevant(text, c.banned) {
			relevant = append(relevant, video)
		}
	}
	logrus.WithFields(logrus.Fields{
		"total":    len(result.Videos),
		"relevant": len(relevant),
	}).Debug("Pexels search results")

	if len(relevant) == 0 {
		return "", nil
	}

	video := relevant[rand.Intn(len(relevant))]
	for _, file := range video.VideoFiles {
		if file.Width >= minClipWidth {
			return downloadToTemp(ctx, c.download, file.Link)
		}
	}
	return "", nil
}

type pixabayClient struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	download *http.Client
	banned   []string
}

type pixabaySearchResponse struct {
	Hits []pixabayHit `json:"hits"`
}

type pixabayHit struct {
	Tags   string                    `json:"tags"`
	Videos map[string]pixabayVariant `json:"videos"`
}

type pixabayVariant struct {
	URL string `json:"url"`
}

func (c *pixabayClient) name() string { return "pixabay" }

func (c *pixabayClient) fetch(ctx context.Context, query string) (string, error) {
	if c.apiKey == "" {
		return "", nil
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", query)
	params.Set("per_page", strconv.Itoa(clipsPerPage))
	params.Set("safesearch", "true")
	params.Set("min_width", strconv.Itoa(minClipWidth))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/videos/?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pixabay search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pixabay search returned %d", resp.StatusCode)
	}

	var result pixabaySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode pixabay response: %w", err)
	}

	for _, hit := range result.Hits {
		if !isRelevant(hit.Tags, c.banned) {
			continue
		}
		for _, quality := range []string{"large", "medium", "small"} {
			if variant, ok := hit.Videos[quality]; ok && variant.URL != "" {
				return downloadToTemp(ctx, c.download, variant.URL)
			}
		}
	}
	return "", nil
}

// isRelevant rejects clips whose description or tags mention a banned topic.
func isRelevant(text string, banned []string) bool {
	lower := strings.ToLower(text)
	for _, topic := range banned {
		if topic != "" && strings.Contains(lower, strings.ToLower(topic)) {
			return false
		}
	}
	return true
}

func downloadToTemp(ctx context.Context, client *http.Client, mediaURL string) (string, error) {
	tmp, err := os.CreateTemp("", "clip-*.mp4")
	if err != nil {
		return "", fmt.Errorf("create temp clip: %w", err)
	}

	if err := streamToFile(ctx, client, mediaURL, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func downloadToFile(ctx context.Context, client *http.Client, mediaURL, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if err := streamToFile(ctx, client, mediaURL, out); err != nil {
		out.Close()
		os.Remove(destPath)
		return err
	}
	return out.Close()
}

func streamToFile(ctx context.Context, client *http.Client, mediaURL string, out io.Writer) error {
	if mediaURL == "" {
		return errors.New("empty media URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %d", resp.StatusCode)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write media: %w", err)
	}
	return nil
}
