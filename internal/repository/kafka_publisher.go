package repository

import (
	"context"

	"ChainWatch/internal/domain/models"
	"ChainWatch/internal/domain/repository"
	pkgkafka "ChainWatch/pkg/kafka"
)

// KafkaPublisher hands anomaly records and run summaries to Kafka for the
// downstream notification consumers.
type KafkaPublisher struct {
	producer     *pkgkafka.Producer
	anomalyTopic string
	runTopic     string
}

// NewKafkaPublisher creates a Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, anomalyTopic, runTopic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, anomalyTopic: anomalyTopic, runTopic: runTopic}
}

func (p *KafkaPublisher) PublishRecords(ctx context.Context, recs []*models.AnomalyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	msgs := make([]pkgkafka.Message, len(recs))
	for i, r := range recs {
		notes := make([]string, 0, len(r.Signals))
		for _, s := range r.Signals {
			if s.Note != "" {
				notes = append(notes, s.Note)
			}
		}
		msgs[i] = pkgkafka.Message{
			Key: []byte(r.Symbol),
			Value: map[string]interface{}{
				"symbol":            r.Symbol,
				"date":              r.SnapshotDate.Format("2006-01-02"),
				"tier":              string(r.Tier),
				"composite_score":   r.CompositeScore,
				"rule_triggered":    r.RuleTriggered,
				"composite_flagged": r.CompositeFlagged,
				"notes":             notes,
			},
		}
	}
	return p.producer.PublishBatch(ctx, p.anomalyTopic, msgs)
}

func (p *KafkaPublisher) PublishSummary(ctx context.Context, s *models.RunSummary) error {
	byTier := make(map[string]int, len(s.AnomaliesByTier))
	for tier, n := range s.AnomaliesByTier {
		byTier[string(tier)] = n
	}

	return p.producer.Publish(ctx, p.runTopic, []byte(s.RunDate.Format("2006-01-02")), map[string]interface{}{
		"run_date":         s.RunDate.Format("2006-01-02"),
		"started_at":       s.StartedAt,
		"finished_at":      s.FinishedAt,
		"attempted":        s.Attempted,
		"succeeded":        s.Succeeded,
		"failed":           s.Failed,
		"failed_by_reason": s.FailedByReason,
		"anomalies":        byTier,
		"skipped_baseline": s.SkippedBaseline,
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
