// Package search publishes build documents to Elasticsearch. Indexing is a
// best-effort side channel: callers log and swallow failures.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
)

// Indexer implements SearchService over an Elasticsearch cluster.
type Indexer struct {
	client      *elasticsearch.Client
	indexPrefix string
	logger      arbor.ILogger
}

// NewIndexer creates a new search indexer
func NewIndexer(config *common.SearchConfig, logger arbor.ILogger) (interfaces.SearchService, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{fmt.Sprintf("http://%s:%d", config.Host, config.Port)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Indexer{
		client:      client,
		indexPrefix: config.LogsIndex,
		logger:      logger,
	}, nil
}

// indexName builds the per-owner/repo index name.
func (i *Indexer) indexName(owner, repo string) string {
	return strings.ToLower(fmt.Sprintf("%s-%s-%s", i.indexPrefix, owner, repo))
}

// IndexBuild writes the document keyed by build number.
func (i *Indexer) IndexBuild(ctx context.Context, doc *models.BuildDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize build document %d: %w", doc.Number, err)
	}

	req := esapi.IndexRequest{
		Index:      i.indexName(doc.Owner, doc.Repo),
		DocumentID: strconv.Itoa(doc.Number),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	resp, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to index build %d: %w", doc.Number, err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("elasticsearch rejected build %d: %s", doc.Number, resp.String())
	}

	i.logger.Debug().
		Str("index", i.indexName(doc.Owner, doc.Repo)).
		Int("build", doc.Number).
		Msg("Build document indexed")
	return nil
}
