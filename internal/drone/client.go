// Package drone is the typed client for the Drone CI REST API, backed by
// the shared HTTP interaction cache and a request rate limiter.
package drone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
	"golang.org/x/time/rate"
)

const upstreamErrorBodyLimit = 512

// Client implements DroneClient over the Drone HTTP API.
type Client struct {
	baseURL     string
	token       string
	maxPages    int
	maxBuilds   int
	initialPage int

	httpClient *http.Client
	cache      interfaces.HTTPCacheService
	events     interfaces.EventService
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewClient creates a new Drone API client
func NewClient(config *common.DroneConfig, cache interfaces.HTTPCacheService, events interfaces.EventService, logger arbor.ILogger) interfaces.DroneClient {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Every(config.RateLimit)
	}
	return &Client{
		baseURL:     config.URL,
		token:       config.AccessToken,
		maxPages:    config.MaxPages,
		maxBuilds:   config.MaxBuilds,
		initialPage: config.InitialPage,
		httpClient:  &http.Client{Timeout: config.RequestTimeout},
		cache:       cache,
		events:      events,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// get performs a GET against the Drone API. When useCache is true a cached
// interaction short-circuits the network; every fresh 200 response is
// written back to the cache either way.
func (c *Client) get(ctx context.Context, requestURL string, useCache bool) ([]byte, error) {
	if useCache {
		interaction, err := c.cache.Lookup(ctx, http.MethodGet, requestURL)
		if err != nil {
			return nil, err
		}
		if interaction != nil {
			return interaction.ResponseBody, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", requestURL, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", common.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", requestURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", requestURL, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{URL: requestURL}
	case resp.StatusCode != http.StatusOK:
		snippet := body
		if len(snippet) > upstreamErrorBodyLimit {
			snippet = snippet[:upstreamErrorBodyLimit]
		}
		return nil, &UpstreamError{URL: requestURL, Status: resp.StatusCode, Body: string(snippet)}
	}

	if _, err := c.cache.Upsert(ctx,
		&models.CapturedRequest{Method: http.MethodGet, URL: requestURL, Headers: req.Header},
		&models.CapturedResponse{Status: resp.StatusCode, Headers: resp.Header, Body: body},
	); err != nil {
		c.logger.Warn().Err(err).Str("url", requestURL).Msg("Failed to cache interaction")
	}

	return body, nil
}

func (c *Client) buildsURL(owner, repo string, limit, page int) string {
	return fmt.Sprintf("%s/api/repos/%s/%s/builds?page=%d&limit=%d", c.baseURL, owner, repo, page, limit)
}

func (c *Client) fetchBuildsPage(ctx context.Context, owner, repo string, limit, page int) ([]*models.Build, error) {
	// Listing pages always forces a fresh read; the page contents shift as
	// new builds arrive.
	body, err := c.get(ctx, c.buildsURL(owner, repo, limit, page), false)
	if err != nil {
		return nil, err
	}
	var builds []*models.Build
	if err := json.Unmarshal(body, &builds); err != nil {
		return nil, fmt.Errorf("failed to decode builds page %d for %s/%s: %w", page, owner, repo, err)
	}
	return builds, nil
}

// GetBuilds paginates from the initial page until max_builds are collected
// or max_pages is reached, then returns the builds sorted descending by
// last activity, truncated to max_builds. Ties keep server order.
func (c *Client) GetBuilds(ctx context.Context, owner, repo string, limit, page int) ([]*models.Build, error) {
	if page < c.initialPage {
		page = c.initialPage
	}

	var builds []*models.Build
	for current := page; ; current++ {
		pageBuilds, err := c.fetchBuildsPage(ctx, owner, repo, limit, current)
		if err != nil {
			return nil, err
		}
		builds = append(builds, pageBuilds...)

		_ = c.events.Publish(ctx, interfaces.Event{
			Type: interfaces.EventGetBuilds,
			Payload: map[string]any{
				"owner": owner, "repo": repo,
				"limit": limit, "page": current,
				"builds":     len(pageBuilds),
				"max_builds": c.maxBuilds, "max_pages": c.maxPages,
			},
		})

		if len(pageBuilds) == 0 || len(builds) >= c.maxBuilds || current >= c.maxPages {
			break
		}
	}

	sort.SliceStable(builds, func(i, j int) bool {
		return builds[i].LastActivity() > builds[j].LastActivity()
	})
	if len(builds) > c.maxBuilds {
		builds = builds[:c.maxBuilds]
	}
	return builds, nil
}

// IterBuildsByPage lazily yields one page at a time on the returned
// channel. The sequence ends at an empty page, the page cap, or context
// cancellation; the channel is closed when the sequence ends.
func (c *Client) IterBuildsByPage(ctx context.Context, owner, repo string, limit, page int) (<-chan interfaces.BuildsPage, error) {
	if page < c.initialPage {
		page = c.initialPage
	}

	pages := make(chan interfaces.BuildsPage)
	go func() {
		defer close(pages)
		for current := page; ; current++ {
			pageBuilds, err := c.fetchBuildsPage(ctx, owner, repo, limit, current)
			if err != nil {
				c.logger.Warn().Err(err).
					Str("owner", owner).Str("repo", repo).Int("page", current).
					Msg("Build page fetch failed, ending iteration")
				return
			}

			_ = c.events.Publish(ctx, interfaces.Event{
				Type: interfaces.EventIterBuildsByPage,
				Payload: map[string]any{
					"owner": owner, "repo": repo,
					"page": current, "builds": len(pageBuilds),
				},
			})

			if len(pageBuilds) == 0 {
				return
			}
			select {
			case pages <- interfaces.BuildsPage{Builds: pageBuilds, Page: current, MaxPages: c.maxPages}:
			case <-ctx.Done():
				return
			}
			if current >= c.maxPages {
				return
			}
		}
	}()
	return pages, nil
}

// GetBuildInfo fetches one build with its stages and steps. Served from the
// interaction cache when present.
func (c *Client) GetBuildInfo(ctx context.Context, owner, repo string, buildNumber int) (*models.Build, error) {
	requestURL := fmt.Sprintf("%s/api/repos/%s/%s/builds/%d", c.baseURL, owner, repo, buildNumber)
	body, err := c.get(ctx, requestURL, true)
	if err != nil {
		return nil, err
	}

	var build models.Build
	if err := json.Unmarshal(body, &build); err != nil {
		return nil, fmt.Errorf("failed to decode build %d for %s/%s: %w", buildNumber, owner, repo, err)
	}

	_ = c.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventGetBuildInfo,
		Payload: map[string]any{
			"owner": owner, "repo": repo, "build_number": buildNumber,
		},
	})
	return &build, nil
}

// GetBuildStepOutput fetches a step's log. Upstream replies either an
// Output object or a bare list of lines; a 404 yields nil without error.
func (c *Client) GetBuildStepOutput(ctx context.Context, owner, repo string, buildNumber, stageNumber, stepNumber int) (*models.Output, error) {
	requestURL := fmt.Sprintf("%s/api/repos/%s/%s/builds/%d/logs/%d/%d",
		c.baseURL, owner, repo, buildNumber, stageNumber, stepNumber)

	body, err := c.get(ctx, requestURL, true)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	output, err := decodeOutput(requestURL, body)
	if err != nil {
		return nil, err
	}

	_ = c.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventGetBuildStepOutput,
		Payload: map[string]any{
			"owner": owner, "repo": repo,
			"build_number": buildNumber, "stage_number": stageNumber, "step_number": stepNumber,
			"lines": len(output.Lines),
		},
	})
	return output, nil
}

func decodeOutput(requestURL string, body []byte) (*models.Output, error) {
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		var output models.Output
		if err := json.Unmarshal(trimmed, &output); err != nil {
			return nil, fmt.Errorf("failed to decode output object from %s: %w", requestURL, err)
		}
		return &output, nil
	case len(trimmed) > 0 && trimmed[0] == '[':
		var lines []models.OutputLine
		if err := json.Unmarshal(trimmed, &lines); err != nil {
			return nil, fmt.Errorf("failed to decode output lines from %s: %w", requestURL, err)
		}
		return &models.Output{Lines: lines}, nil
	default:
		snippet := string(trimmed)
		if len(snippet) > 64 {
			snippet = snippet[:64]
		}
		return nil, &UnexpectedShapeError{URL: requestURL, Snippet: snippet}
	}
}

// GetLatestBuild fetches the latest build of a branch with its logs.
func (c *Client) GetLatestBuild(ctx context.Context, owner, repo, branch string) (*models.Build, error) {
	requestURL := fmt.Sprintf("%s/api/repos/%s/%s/builds/latest?branch=%s",
		c.baseURL, owner, repo, url.QueryEscape(branch))

	body, err := c.get(ctx, requestURL, true)
	if err != nil {
		return nil, err
	}
	var build models.Build
	if err := json.Unmarshal(body, &build); err != nil {
		return nil, fmt.Errorf("failed to decode latest build of %s/%s@%s: %w", owner, repo, branch, err)
	}
	return c.InjectLogs(ctx, owner, repo, &build), nil
}

// InjectLogs populates the output of every non-skipped step. A per-step
// fetch failure leaves that step's output empty and moves on.
func (c *Client) InjectLogs(ctx context.Context, owner, repo string, build *models.Build) *models.Build {
	for _, stage := range build.Stages {
		for _, step := range stage.Steps {
			if step.Status == models.StatusSkipped {
				continue
			}
			output, err := c.GetBuildStepOutput(ctx, owner, repo, build.Number, stage.Number, step.Number)
			if err != nil {
				c.logger.Warn().Err(err).
					Str("owner", owner).Str("repo", repo).
					Int("build", build.Number).Int("stage", stage.Number).Int("step", step.Number).
					Msg("Failed to fetch step output")
				continue
			}
			step.Output = output
		}
	}
	return build
}

// GetBuildWithLogs composes GetBuildInfo and InjectLogs.
func (c *Client) GetBuildWithLogs(ctx context.Context, owner, repo string, buildNumber int) (*models.Build, error) {
	build, err := c.GetBuildInfo(ctx, owner, repo, buildNumber)
	if err != nil {
		return nil, err
	}
	return c.InjectLogs(ctx, owner, repo, build), nil
}
