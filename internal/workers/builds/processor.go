// Package builds implements the per-job build processor: fetch the build,
// gate on deduplication and filters, inject logs, persist, analyze failed
// steps against the rule set and fan results out to the notifier and the
// search index.
package builds

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
	"github.com/ternarybob/dronebutler/internal/rules"
)

// Processor implements BuildProcessor for one owner/repo.
type Processor struct {
	owner   string
	repo    string
	client  interfaces.DroneClient
	storage interfaces.StorageManager
	ruleset *rules.RuleSet
	notify  interfaces.Notifier
	search  interfaces.SearchService
	logger  arbor.ILogger

	prLink *regexp.Regexp
}

// NewProcessor creates a new build processor
func NewProcessor(
	config *common.DroneConfig,
	client interfaces.DroneClient,
	storage interfaces.StorageManager,
	ruleset *rules.RuleSet,
	notify interfaces.Notifier,
	search interfaces.SearchService,
	logger arbor.ILogger,
) interfaces.BuildProcessor {
	return &Processor{
		owner:   config.Owner,
		repo:    config.Repo,
		client:  client,
		storage: storage,
		ruleset: ruleset,
		notify:  notify,
		search:  search,
		logger:  logger,
		prLink: regexp.MustCompile(
			fmt.Sprintf(`github\.com/%s/%s/pull/(\d+)`,
				regexp.QuoteMeta(config.Owner), regexp.QuoteMeta(config.Repo))),
	}
}

// Process runs the full pipeline for one build. A failure at any step
// aborts this build only; the job was already acknowledged by the broker.
func (p *Processor) Process(ctx context.Context, buildID int, ignoreFilters bool) error {
	log := p.logger.WithCorrelationId(fmt.Sprintf("build-%d", buildID))

	// 1. Fetch.
	build, err := p.client.GetBuildInfo(ctx, p.owner, p.repo, buildID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch build, dropping job")
		return nil
	}

	// 2. Deduplication gate.
	stored, err := p.storage.BuildStorage().FindByLink(ctx, p.owner, p.repo, build.Link)
	if err != nil {
		return fmt.Errorf("dedup lookup for build %d: %w", buildID, err)
	}
	if stored != nil {
		if stored.LastRulesetProcessedAt != nil {
			log.Debug().Msg("Build already analyzed, skipping")
			return nil
		}
		if !ignoreFilters && stored.Terminal() {
			log.Debug().Msg("Build terminal and outputs fetched, skipping")
			return nil
		}
	}

	// 3. Filter gate.
	if !p.prLink.MatchString(build.Link) {
		log.Debug().Str("link", build.Link).Msg("Not a pull-request build, dropping")
		return nil
	}

	// The author is resolved even under ignore_filters: filters decide
	// whether the build is processed, not who gets notified.
	user, err := p.storage.UserStorage().FindByGithubUsername(ctx, build.AuthorLogin)
	if err != nil {
		return fmt.Errorf("user lookup for %s: %w", build.AuthorLogin, err)
	}
	if user != nil && !user.OptedIn {
		user = nil
	}
	if !ignoreFilters {
		if user == nil {
			log.Debug().Str("author", build.AuthorLogin).Msg("Author not opted in, dropping")
			return nil
		}
		if build.Status != models.StatusRunning && build.Status != models.StatusFailure {
			log.Debug().Str("status", build.Status).Msg("Build status out of scope, dropping")
			return nil
		}
	}

	// 4. Inject logs.
	build, err = p.client.GetBuildWithLogs(ctx, p.owner, p.repo, buildID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch build logs, dropping job")
		return nil
	}

	// 5. Persist the snapshot with outputs.
	if stored == nil {
		stored, err = p.storage.BuildStorage().GetOrCreate(ctx, p.owner, p.repo, build)
		if err != nil {
			return fmt.Errorf("persist build %d: %w", buildID, err)
		}
	}
	now := time.Now().UTC()
	if err := p.storage.BuildStorage().UpdateFromAPI(ctx, stored, p.owner, p.repo, build, &now); err != nil {
		return fmt.Errorf("persist build %d: %w", buildID, err)
	}
	p.persistStepOutputs(ctx, build, log)

	// 6. Analyze failed steps and persist the matches. An empty result set
	// still stamps last_ruleset_processed_at so the dedup gate holds.
	matches, analysisCtx := p.analyze(build)

	// A concurrent worker may have finished the same build between the
	// gate and here; recheck before writing matches.
	current, err := p.storage.BuildStorage().Get(ctx, p.owner, p.repo, build.Number)
	if err != nil {
		return fmt.Errorf("recheck build %d: %w", buildID, err)
	}
	if current != nil && current.LastRulesetProcessedAt != nil {
		log.Debug().Msg("Build analyzed concurrently, skipping matches write")
		return nil
	}

	if err := p.storage.BuildStorage().UpdateMatches(ctx, stored, rules.DescribeAll(matches, analysisCtx)); err != nil {
		return fmt.Errorf("persist matches for build %d: %w", buildID, err)
	}

	if len(matches) == 0 {
		log.Info().Msg("Analysis produced no matches")
		return nil
	}

	log.Info().Int("matches", len(matches)).Msg("Analysis produced matches")

	if user != nil && p.notify != nil {
		if err := p.notify.Notify(ctx, user, analysisCtx, matches); err != nil {
			log.Error().Err(err).Str("author", build.AuthorLogin).Msg("Notifier failed")
		}
	}
	p.indexDocument(ctx, stored, analysisCtx, log)
	return nil
}

// analyze walks failed stages and their failed steps, applying the rule set
// to each (build, stage, step) context. The context of the last evaluation
// accompanies the matches for rendering and indexing.
func (p *Processor) analyze(build *models.Build) ([]*rules.MatchedRule, *models.AnalysisContext) {
	var matches []*rules.MatchedRule
	analysisCtx := &models.AnalysisContext{Build: build}

	for _, stage := range build.FailedStages() {
		for _, step := range stage.FailedSteps() {
			ctx := &models.AnalysisContext{Build: build, Stage: stage, Step: step}
			result := p.ruleset.Apply(ctx)
			if len(result) > 0 {
				matches = append(matches, result...)
				analysisCtx = ctx
			}
		}
	}
	return matches, analysisCtx
}

// persistStepOutputs attaches every fetched step output under the stored
// build. Per-step persistence failures are logged and skipped.
func (p *Processor) persistStepOutputs(ctx context.Context, build *models.Build, log arbor.ILogger) {
	for _, stage := range build.Stages {
		for _, step := range stage.Steps {
			if step.Output == nil {
				continue
			}
			if _, err := p.storage.StepStorage().AttachOutput(ctx, p.owner, p.repo, build.Number, stage.Number, step.Number, step.Output); err != nil {
				log.Warn().Err(err).
					Int("stage", stage.Number).Int("step", step.Number).
					Msg("Failed to persist step output")
			}
		}
	}
}

// indexDocument projects the stored build for search. Best-effort: failure
// to index is logged and swallowed.
func (p *Processor) indexDocument(ctx context.Context, stored *models.StoredBuild, analysisCtx *models.AnalysisContext, log arbor.ILogger) {
	if p.search == nil {
		return
	}
	doc, err := stored.ToDocument(analysisCtx.Stage, analysisCtx.Step)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to project build document")
		return
	}
	if err := p.search.IndexBuild(ctx, doc); err != nil {
		log.Warn().Err(err).Msg("Failed to index build document")
	}
}
