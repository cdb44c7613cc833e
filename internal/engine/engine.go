// Package engine is the command-dispatch layer of the view service. Every
// consumer of the engine — the stream consumer, the REST handlers, tooling —
// goes through Execute with a tagged command; the engine wires validation,
// aggregation, the view store and best-effort persistence together and always
// answers with a structured result, never a fault.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"orderviews/internal/aggregator"
	"orderviews/internal/instrumentation"
	"orderviews/internal/models"
)

// Gateway is the durable storage collaborator. Lookups return (nil, nil) when
// the entity has never been persisted.
type Gateway interface {
	Save(ctx context.Context, state *models.ViewState) error
	GetCustomer(ctx context.Context, customerID int64) (*models.CustomerStats, error)
	GetProduct(ctx context.Context, productID string) (*models.ProductStats, error)
	GetTimeline(ctx context.Context, limit int) ([]models.TimelineEntry, error)
	Ping(ctx context.Context) error
}

// CommandKind enumerates the closed set of commands the engine routes.
// Adding a kind means extending the switch in Execute.
type CommandKind string

const (
	CmdConsume       CommandKind = "consume"
	CmdPersist       CommandKind = "persist"
	CmdQueryCustomer CommandKind = "query_customer"
	CmdQueryProduct  CommandKind = "query_product"
	CmdQueryTimeline CommandKind = "query_timeline"
	CmdHealthCheck   CommandKind = "health_check"
	CmdGetStats      CommandKind = "get_stats"
	CmdReset         CommandKind = "reset"
)

// DefaultTimelineLimit bounds query_timeline when no limit is given.
const DefaultTimelineLimit = 100

// Command is a tagged request. Only the fields relevant to Kind are read.
type Command struct {
	Kind       CommandKind     `json:"kind"`
	Order      json.RawMessage `json:"order,omitempty"`
	CustomerID int64           `json:"customer_id,omitempty"`
	ProductID  string          `json:"product_id,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

// StatsSummary is the derived snapshot returned by get_stats and health_check.
type StatsSummary struct {
	CustomerCount int                    `json:"customer_count"`
	ProductCount  int                    `json:"product_count"`
	TimelineSize  int                    `json:"timeline_size"`
	Processing    models.ProcessingStats `json:"processing_stats"`
}

// Result is the uniform response shape for every command. Fields beyond
// Success/Error are populated per command kind.
type Result struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	OrderID string            `json:"order_id,omitempty"`
	Views   *models.ViewState `json:"views,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
	Count   int               `json:"count,omitempty"`
	Status  string            `json:"status,omitempty"`
	Storage string            `json:"storage,omitempty"`
	Stats   *StatsSummary     `json:"stats,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Config holds the engine settings read from service configuration.
type Config struct {
	ProcessorID     string
	TimelineMaxSize int
	SaveTimeout     time.Duration
}

// Engine routes commands over the shared view store and persistence gateway.
type Engine struct {
	store   *aggregator.Store
	gateway Gateway
	cfg     Config
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// New creates an engine with a freshly initialized view state. The gateway
// and metrics may be nil; consume then skips persistence and instrumentation.
func New(gateway Gateway, cfg Config, logger *slog.Logger, metrics *instrumentation.Metrics) *Engine {
	return &Engine{
		store:   aggregator.NewStore(aggregator.Init(cfg.ProcessorID)),
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.With("component", "engine", "processor_id", cfg.ProcessorID),
		metrics: metrics,
	}
}

// Store exposes the view store for read-only observers (metrics sampling).
func (e *Engine) Store() *aggregator.Store {
	return e.store
}

// Execute routes a command to its handler. Collaborator faults, including
// panics, are converted into failure results; no command terminates the
// process.
func (e *Engine) Execute(ctx context.Context, cmd Command) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("command_panic", "kind", cmd.Kind, "panic", fmt.Sprint(r))
			result = Result{Success: false, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	switch cmd.Kind {
	case CmdConsume:
		return e.consume(ctx, cmd.Order)
	case CmdPersist:
		return e.persist(ctx)
	case CmdQueryCustomer:
		return e.queryCustomer(ctx, cmd.CustomerID)
	case CmdQueryProduct:
		return e.queryProduct(ctx, cmd.ProductID)
	case CmdQueryTimeline:
		return e.queryTimeline(ctx, cmd.Limit)
	case CmdHealthCheck:
		return e.healthCheck(ctx)
	case CmdGetStats:
		return e.getStats()
	case CmdReset:
		return e.reset()
	default:
		e.logger.Warn("unknown_command", "kind", string(cmd.Kind))
		return Result{Success: false, Error: fmt.Sprintf("Unknown command type: %s", cmd.Kind)}
	}
}

// consume validates a raw order, folds it into the view state and kicks off a
// best-effort durable write. A validation failure increments the error
// counter and never touches the views; a persistence failure is logged and
// does not change the outcome — the in-memory state is authoritative between
// persistence cycles.
func (e *Engine) consume(ctx context.Context, raw []byte) Result {
	start := time.Now()

	order, err := models.DecodeOrder(raw)
	if err != nil {
		e.store.Update(aggregator.IncrementErrors)
		if e.metrics != nil {
			e.metrics.RecordValidationError()
		}
		orderID := models.OrderIDFromRaw(raw)
		e.logger.Warn("order_rejected", "order_id", orderID, "error", err)
		return Result{Success: false, Error: err.Error(), OrderID: orderID}
	}

	newState := e.store.Update(func(state *models.ViewState) *models.ViewState {
		return aggregator.Apply(state, order, e.cfg.TimelineMaxSize)
	})

	if e.metrics != nil {
		e.metrics.RecordOrderConsumed()
		e.metrics.RecordStreamLag(float64(time.Now().UnixMilli() - order.Timestamp))
		e.metrics.RecordViewSizes(len(newState.CustomerStats), len(newState.ProductStats), len(newState.Timeline))
	}

	// Persistence happens after the state transition commits, outside the
	// store's retry loop, so readers never wait on the gateway.
	if e.gateway != nil {
		saveCtx, cancel := context.WithTimeout(ctx, e.cfg.SaveTimeout)
		defer cancel()
		if err := e.gateway.Save(saveCtx, newState); err != nil {
			if e.metrics != nil {
				e.metrics.RecordPersistFailure()
			}
			e.logger.Warn("view_persist_failed", "order_id", order.OrderID, "error", err)
		}
	}

	if e.metrics != nil {
		e.metrics.RecordConsumeLatency(float64(time.Since(start).Milliseconds()))
	}

	e.logger.Debug("order_aggregated",
		"order_id", order.OrderID,
		"customer_id", order.CustomerID,
		"product_id", order.ProductID,
		"status", order.Status,
		"processed_count", newState.Processing.ProcessedCount,
	)

	return Result{Success: true, OrderID: order.OrderID, Views: newState}
}

func (e *Engine) persist(ctx context.Context) Result {
	if e.gateway == nil {
		return Result{Success: false, Error: "persistence gateway unavailable"}
	}

	saveCtx, cancel := context.WithTimeout(ctx, e.cfg.SaveTimeout)
	defer cancel()

	if err := e.gateway.Save(saveCtx, e.store.Read()); err != nil {
		e.logger.Error("view_persist_failed", "error", err)
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true}
}

func (e *Engine) queryCustomer(ctx context.Context, customerID int64) Result {
	stats, err := e.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		e.logger.Error("customer_lookup_failed", "customer_id", customerID, "error", err)
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: stats}
}

func (e *Engine) queryProduct(ctx context.Context, productID string) Result {
	stats, err := e.gateway.GetProduct(ctx, productID)
	if err != nil {
		e.logger.Error("product_lookup_failed", "product_id", productID, "error", err)
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: stats}
}

func (e *Engine) queryTimeline(ctx context.Context, limit int) Result {
	if limit <= 0 {
		limit = DefaultTimelineLimit
	}
	entries, err := e.gateway.GetTimeline(ctx, limit)
	if err != nil {
		e.logger.Error("timeline_fetch_failed", "limit", limit, "error", err)
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: entries, Count: len(entries)}
}

func (e *Engine) healthCheck(ctx context.Context) Result {
	if e.gateway == nil {
		return Result{Success: false, Status: "unhealthy", Error: "persistence gateway unavailable"}
	}
	if err := e.gateway.Ping(ctx); err != nil {
		e.logger.Error("liveness_probe_failed", "error", err)
		return Result{Success: false, Status: "unhealthy", Error: err.Error()}
	}
	stats := e.summarize(e.store.Read())
	return Result{Success: true, Status: "healthy", Storage: "connected", Stats: &stats}
}

func (e *Engine) getStats() Result {
	stats := e.summarize(e.store.Read())
	return Result{Success: true, Stats: &stats}
}

func (e *Engine) reset() Result {
	e.store.Replace(aggregator.Init(e.cfg.ProcessorID))
	e.logger.Info("views_reset", "processor_id", e.cfg.ProcessorID)
	return Result{Success: true, Message: "views reset to initial state"}
}

func (e *Engine) summarize(state *models.ViewState) StatsSummary {
	return StatsSummary{
		CustomerCount: len(state.CustomerStats),
		ProductCount:  len(state.ProductStats),
		TimelineSize:  len(state.Timeline),
		Processing:    state.Processing,
	}
}
