package repository

import (
	"context"
	"time"

	"PortfolioPulse/internal/domain/models"
	domrepo "PortfolioPulse/internal/domain/repository"
	pkgkafka "PortfolioPulse/pkg/kafka"
)

// KafkaRunPublisher writes each analysis run to a topic keyed by run id.
type KafkaRunPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaRunPublisher creates a publisher on topic.
func NewKafkaRunPublisher(producer *pkgkafka.Producer, topic string) *KafkaRunPublisher {
	return &KafkaRunPublisher{producer: producer, topic: topic}
}

var _ domrepo.RunPublisher = (*KafkaRunPublisher)(nil)

// RunMessage is the wire shape of a published run.
type RunMessage struct {
	RunID           string                       `json:"run_id"`
	StartedAt       time.Time                    `json:"started_at"`
	DurationMs      int64                        `json:"duration_ms"`
	Benchmark       models.Ticker                `json:"benchmark"`
	Portfolio       models.PortfolioMetrics      `json:"portfolio"`
	Positions       []models.PositionMetrics     `json:"positions"`
	Exclusions      []models.Exclusion           `json:"exclusions"`
	Recommendations []models.Recommendation      `json:"recommendations"`
	Rebalancing     []models.RebalanceSuggestion `json:"rebalancing"`
	Warnings        []models.FetchOutcome        `json:"warnings"`
}

// NewRunMessage flattens a run for publishing.
func NewRunMessage(run *models.AnalysisRun) RunMessage {
	m := RunMessage{
		RunID:           run.ID,
		StartedAt:       run.StartedAt,
		DurationMs:      run.Duration.Milliseconds(),
		Benchmark:       run.Benchmark,
		Portfolio:       run.Metrics.Portfolio,
		Positions:       make([]models.PositionMetrics, 0, len(run.Metrics.Order)),
		Exclusions:      run.Metrics.Exclusions,
		Recommendations: run.Recommendations,
		Rebalancing:     run.Rebalancing,
		Warnings:        run.Warnings(),
	}
	for _, t := range run.Metrics.Order {
		m.Positions = append(m.Positions, run.Metrics.PerPosition[t])
	}
	return m
}

func (p *KafkaRunPublisher) Publish(ctx context.Context, run *models.AnalysisRun) error {
	return p.producer.Publish(ctx, p.topic, []byte(run.ID), NewRunMessage(run))
}

func (p *KafkaRunPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopRunPublisher drops runs. Used when Kafka is disabled.
type NoopRunPublisher struct{}

func (NoopRunPublisher) Publish(context.Context, *models.AnalysisRun) error { return nil }
func (NoopRunPublisher) Close() error                                       { return nil }
