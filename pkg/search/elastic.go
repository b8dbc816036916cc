// Package search writes documents into Elasticsearch.
package search

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/olivere/elastic/v7"
)

// Indexer is the raw index backend, one call per request and no retries.
type Indexer interface {
	Index(ctx context.Context, index, id string, body any) error
	IndexExists(ctx context.Context, index string) (bool, error)
	CreateIndex(ctx context.Context, index, body string) error
	Ping(ctx context.Context) error
}

type ElasticConfig struct {
	URLs  []string
	Sniff bool
}

// ElasticIndexer talks to Elasticsearch through olivere/elastic.
type ElasticIndexer struct {
	client *elastic.Client
	urls   []string
	logger ectologger.Logger
}

func NewElasticIndexer(cfg ElasticConfig, logger ectologger.Logger) (*ElasticIndexer, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("no elasticsearch url configured")
	}

	client, err := elastic.NewClient(
		elastic.SetURL(cfg.URLs...),
		elastic.SetSniff(cfg.Sniff),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	logger.Infof("Elasticsearch client configured for %v", cfg.URLs)
	return &ElasticIndexer{client: client, urls: cfg.URLs, logger: logger}, nil
}

// Index stores body under id, replacing any previous document.
func (e *ElasticIndexer) Index(ctx context.Context, index, id string, body any) error {
	_, err := e.client.Index().
		Index(index).
		Id(id).
		BodyJson(body).
		Do(ctx)
	return err
}

func (e *ElasticIndexer) IndexExists(ctx context.Context, index string) (bool, error) {
	return e.client.IndexExists(index).Do(ctx)
}

func (e *ElasticIndexer) CreateIndex(ctx context.Context, index, body string) error {
	res, err := e.client.CreateIndex(index).BodyString(body).Do(ctx)
	if err != nil {
		return err
	}
	if !res.Acknowledged {
		return fmt.Errorf("create index %s was not acknowledged", index)
	}
	return nil
}

func (e *ElasticIndexer) Ping(ctx context.Context) error {
	_, code, err := e.client.Ping(e.urls[0]).Do(ctx)
	if err != nil {
		return err
	}
	if code >= 400 {
		return fmt.Errorf("elasticsearch ping returned status %d", code)
	}
	return nil
}
