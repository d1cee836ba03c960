package repository

import (
	"context"

	"ChainWatch/internal/domain/models"
	"ChainWatch/internal/domain/repository"
)

// NoopPublisher discards everything. Used when Kafka is disabled.
type NoopPublisher struct{}

func NewNoopPublisher() repository.Publisher { return &NoopPublisher{} }

func (NoopPublisher) PublishRecords(context.Context, []*models.AnomalyRecord) error { return nil }
func (NoopPublisher) PublishSummary(context.Context, *models.RunSummary) error      { return nil }
func (NoopPublisher) Close() error                                                  { return nil }
