package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/generative"
	"github.com/TFMV/fedquery/pkg/infrastructure/metrics"
	"github.com/TFMV/fedquery/pkg/models"
	"github.com/TFMV/fedquery/pkg/repositories"
)

const answerPromptTemplate = `You are a helpful assistant for a Smart Campus Query System.
The system manages student data, course information, faculty details, and academic resources.

Please provide a clear, concise, and informative answer to this question:
%s

Keep your response focused and practical for an academic environment.`

// CoordinatorConfig configures the generative answer path.
type CoordinatorConfig struct {
	AnswerMaxTokens   int
	GenerativeTimeout time.Duration
}

// CoordinatorDeps are the collaborators of a Coordinator. Cache may be nil to
// disable caching.
type CoordinatorDeps struct {
	Cache      ResultCache
	Classifier Classifier
	Synth      Synthesizer
	Federator  Federator
	Generative generative.Service
	Sources    repositories.Registry
	Logger     Logger
	Metrics    MetricsCollector
}

// Coordinator answers questions end to end. It is safe for concurrent use
// when its collaborators are.
type Coordinator struct {
	cache      ResultCache
	classifier Classifier
	synth      Synthesizer
	federator  Federator
	gen        generative.Service
	exec       *sourceExecutor
	cfg        CoordinatorConfig
	logger     Logger
	metrics    MetricsCollector
	newID      func() string
}

// NewCoordinator creates a coordinator. Missing classifier, generative
// service, logger and metrics fall back to defaults.
func NewCoordinator(deps CoordinatorDeps, cfg CoordinatorConfig) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = NopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics()
	}
	if deps.Classifier == nil {
		deps.Classifier = NewQueryClassifier()
	}
	if deps.Generative == nil {
		deps.Generative = generative.UnavailableService{}
	}
	if cfg.AnswerMaxTokens <= 0 {
		cfg.AnswerMaxTokens = 300
	}
	if cfg.GenerativeTimeout <= 0 {
		cfg.GenerativeTimeout = 30 * time.Second
	}

	return &Coordinator{
		cache:      deps.Cache,
		classifier: deps.Classifier,
		synth:      deps.Synth,
		federator:  deps.Federator,
		gen:        deps.Generative,
		exec:       &sourceExecutor{sources: deps.Sources, logger: deps.Logger, metrics: deps.Metrics},
		cfg:        cfg,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		newID:      uuid.NewString,
	}
}

// Answer resolves q, serving from cache when possible. Every failure is
// reported inside the returned outcome; the outcome is never nil.
func (c *Coordinator) Answer(ctx context.Context, q models.Question) (*models.Outcome, bool) {
	fp := q.Fingerprint()

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, fp); ok {
			c.metrics.IncrementCounter(metrics.CacheHitsTotal)
			c.logger.Info("Served from cache", "fingerprint", fp, "type", cached.Kind)
			return cached, true
		}
		c.metrics.IncrementCounter(metrics.CacheMissesTotal)
	}

	plan := c.classifier.Classify(q)
	requestID := c.newID()
	c.logger.Info("Classified question", "request_id", requestID, "plan", plan.Kind, "targets", plan.Targets, "rule", plan.Reason)

	timer := c.metrics.StartTimer(metrics.QuestionTimer, "plan", string(plan.Kind))
	outcome := c.dispatch(ctx, q, plan)
	elapsed := timer.Stop()

	outcome.RequestID = requestID
	outcome.Backends = plan.Targets
	c.metrics.IncrementCounter(metrics.QuestionsTotal, "plan", string(plan.Kind))
	c.logger.Debug("Question resolved", "request_id", requestID, "success", outcome.Success, "duration", elapsed)

	if c.cache != nil {
		if err := c.cache.Put(ctx, fp, q.String(), plan.Kind, outcome); err != nil {
			c.logger.Warn("Cache write failed", "request_id", requestID, "error", err)
		}
	}
	return outcome, false
}

func (c *Coordinator) dispatch(ctx context.Context, q models.Question, plan models.QueryPlan) *models.Outcome {
	switch plan.Kind {
	case models.PlanGenerative:
		return c.answerGenerative(ctx, q)
	case models.PlanFederated:
		return c.answerFederated(ctx, q)
	default:
		return c.answerSingle(ctx, q, plan.Target())
	}
}

func (c *Coordinator) answerGenerative(ctx context.Context, q models.Question) *models.Outcome {
	genCtx, cancel := context.WithTimeout(ctx, c.cfg.GenerativeTimeout)
	defer cancel()

	answer, err := c.gen.Generate(genCtx, fmt.Sprintf(answerPromptTemplate, string(q)), c.cfg.AnswerMaxTokens)
	if err != nil {
		c.logger.Warn("Generative answer unavailable", "error", err)
		answer = generative.Describe(err)
	}
	return models.NewAnswerOutcome(answer)
}

func (c *Coordinator) answerFederated(ctx context.Context, q models.Question) *models.Outcome {
	if c.federator == nil {
		return models.NewFailureOutcome(models.PlanFederated, errors.New(errors.CodeUnavailable, "federation is not configured"))
	}

	res, err := c.federator.Resolve(ctx, q)
	if err != nil {
		return models.NewFailureOutcome(models.PlanFederated, errors.From(err))
	}

	o := models.NewResultOutcome(models.PlanFederated, res.ResultSet, res.SQL())
	o.Message = res.Message
	o.Federated = true
	return o
}

func (c *Coordinator) answerSingle(ctx context.Context, q models.Question, backend models.BackendID) *models.Outcome {
	if c.synth == nil {
		return models.NewFailureOutcome(models.PlanSQLSingle, errors.New(errors.CodeSynthesisFailed, "no SQL synthesizer configured"))
	}

	stmt := c.synth.Synthesize(ctx, q, backend)
	rs, err := c.exec.execute(ctx, stmt)
	if err != nil {
		return models.NewFailureOutcome(models.PlanSQLSingle, err)
	}
	return models.NewResultOutcome(models.PlanSQLSingle, rs, stmt.Render())
}
