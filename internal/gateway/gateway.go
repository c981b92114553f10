// Package gateway is the observer's only caller-facing surface over the
// Omega tables.
//
// Every operation routes through the policy evaluator before it touches
// storage. Read operations return projections of safe columns; write
// operations only append proposals to the Guardian review queue. The
// gateway has no authority to execute anything.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulse-os/pulse-observer/internal/cache"
	"github.com/pulse-os/pulse-observer/internal/policy"
	"github.com/pulse-os/pulse-observer/internal/schema"
	"github.com/pulse-os/pulse-observer/internal/storage"
	"go.uber.org/zap"
)

// DefaultAutonomyCacheTTL bounds how stale autonomy reference data may be.
const DefaultAutonomyCacheTTL = 10 * time.Minute

// Options configures a Gateway.
type Options struct {
	Registry         *schema.Registry
	Store            storage.Backend
	MaxQueryLimit    int
	Logger           *zap.Logger
	Now              func() time.Time
	NewID            func() string
	AutonomyCacheTTL time.Duration
}

// Gateway implements the observer operations.
type Gateway struct {
	registry  *schema.Registry
	evaluator *policy.Evaluator
	store     storage.Backend
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	levels    *cache.Cache[string, map[string]AutonomyLevel]
}

// New creates a Gateway. Store is required; everything else has a default.
func New(opts Options) (*Gateway, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("gateway: nil store")
	}
	if opts.Registry == nil {
		opts.Registry = schema.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.AutonomyCacheTTL <= 0 {
		opts.AutonomyCacheTTL = DefaultAutonomyCacheTTL
	}

	ev, err := policy.NewEvaluator(opts.Registry, opts.MaxQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	return &Gateway{
		registry:  opts.Registry,
		evaluator: ev,
		store:     opts.Store,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
		levels: cache.New[string, map[string]AutonomyLevel](opts.AutonomyCacheTTL,
			cache.WithClock(opts.Now)),
	}, nil
}

// Evaluator exposes the policy evaluator, mainly for dry-run checks.
func (g *Gateway) Evaluator() *policy.Evaluator { return g.evaluator }

// ─── query ──────────────────────────────────────────────────────────────────

// QueryResult is a permitted read.
type QueryResult struct {
	Table   string        `json:"table"`
	Columns []string      `json:"columns"`
	Rows    []storage.Row `json:"rows"`
	Count   int           `json:"count"`
	Limit   int           `json:"limit"`
	// Truncated is true when the row cap was reached; more rows may exist.
	Truncated bool `json:"truncated"`
}

// Query evaluates req and, if permitted, reads at most the effective
// limit of rows restricted to the validated columns. A denial returns a
// *policy.DeniedError and performs no storage call.
func (g *Gateway) Query(ctx context.Context, req policy.AccessRequest) (*QueryResult, error) {
	const op = "query"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	dec, err := g.authorize(op, req)
	if err != nil {
		return nil, err
	}

	rows, err := g.selectDecision(ctx, dec)
	if err != nil {
		return nil, g.storageErr(op, err)
	}
	if rows == nil {
		rows = []storage.Row{}
	}

	return &QueryResult{
		Table:     dec.Table,
		Columns:   dec.Columns,
		Rows:      rows,
		Count:     len(rows),
		Limit:     dec.EffectiveLimit,
		Truncated: len(rows) >= dec.EffectiveLimit,
	}, nil
}

// authorize evaluates req and logs denials.
func (g *Gateway) authorize(op string, req policy.AccessRequest) (policy.Decision, error) {
	dec := g.evaluator.Evaluate(req)
	if !dec.Permitted {
		g.logger.Info("access denied",
			zap.String("op", op),
			zap.String("table", req.Table),
			zap.String("code", string(dec.Code)),
			zap.Strings("invalid_columns", dec.InvalidColumns),
			zap.String("user_id", req.UserID),
		)
		return dec, dec.Err()
	}
	return dec, nil
}

// selectDecision issues the one storage read a permitting decision allows.
func (g *Gateway) selectDecision(ctx context.Context, dec policy.Decision, extra ...storage.Filter) ([]storage.Row, error) {
	q := storage.SelectQuery{
		Table:   dec.Table,
		Columns: dec.Columns,
		Limit:   dec.EffectiveLimit,
	}
	if dec.Scoped {
		q.Filters = append(q.Filters, storage.Eq("user_id", dec.UserID))
	}
	q.Filters = append(q.Filters, extra...)

	if desc, err := g.registry.Descriptor(dec.Table); err == nil {
		q.OrderBy, q.Desc = orderFor(desc)
	}
	return g.store.Select(ctx, q)
}

// orderFor picks a deterministic sort: newest first when the table has a
// timestamp or period column, otherwise the first safe column ascending.
func orderFor(desc schema.TableDescriptor) (string, bool) {
	for _, c := range []string{"created_at", "period", "updated_at"} {
		if desc.HasSafeColumn(c) {
			return c, true
		}
	}
	return desc.SafeColumns[0], false
}

// ─── describe_schema ────────────────────────────────────────────────────────

// TableSummary is the caller-visible view of one registered table.
type TableSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SafeColumns []string `json:"safe_columns"`
	Global      bool     `json:"global"`
}

// SchemaInfo lists what the gateway will serve.
type SchemaInfo struct {
	MaxQueryLimit int            `json:"max_query_limit"`
	Tables        []TableSummary `json:"tables"`
}

// DescribeSchema returns the queryable tables and their safe columns.
func (g *Gateway) DescribeSchema() SchemaInfo {
	tables := g.registry.Tables()
	info := SchemaInfo{
		MaxQueryLimit: g.evaluator.MaxQueryLimit(),
		Tables:        make([]TableSummary, 0, len(tables)),
	}
	for _, d := range tables {
		info.Tables = append(info.Tables, TableSummary{
			Name:        string(d.Name),
			Description: d.Description,
			SafeColumns: d.SafeColumns,
			Global:      d.Global,
		})
	}
	return info
}

// timestamp renders t the way the Omega tables store times.
func (g *Gateway) timestamp() string {
	return g.now().UTC().Format(time.RFC3339)
}
