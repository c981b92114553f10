package gateway

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pulse-os/pulse-observer/internal/policy"
	"github.com/pulse-os/pulse-observer/internal/schema"
	"github.com/pulse-os/pulse-observer/internal/storage"
	"go.uber.org/zap"
)

// MaxPayloadBytes caps a proposal payload after compaction.
const MaxPayloadBytes = 64 << 10

// ProposalKind says what a queued proposal is about.
type ProposalKind string

const (
	KindImprovement ProposalKind = "improvement"
	KindOutcome     ProposalKind = "outcome"
	KindTestSignal  ProposalKind = "test-signal"
)

// StatusPendingReview is the only status the gateway ever writes. Any
// later transition belongs to the Guardian.
const StatusPendingReview = "pending_review"

// ProposalRecord is an entry in the review queue.
type ProposalRecord struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      ProposalKind    `json:"kind"`
	TargetID  string          `json:"target_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
}

// ProposeImprovement queues an improvement proposal for review. It does
// not apply, schedule or execute anything.
func (g *Gateway) ProposeImprovement(ctx context.Context, userID string, payload json.RawMessage) (*ProposalRecord, error) {
	return g.appendProposal(ctx, "propose_improvement", proposalInput{
		userID:  userID,
		kind:    KindImprovement,
		payload: payload,
	})
}

// ProposeTestSignal queues a synthetic signal for review. The signal is
// never written to pulse_signals by the gateway.
func (g *Gateway) ProposeTestSignal(ctx context.Context, userID string, payload json.RawMessage) (*ProposalRecord, error) {
	return g.appendProposal(ctx, "propose_test_signal", proposalInput{
		userID:  userID,
		kind:    KindTestSignal,
		payload: payload,
	})
}

type proposalInput struct {
	id       string
	userID   string
	kind     ProposalKind
	targetID string
	payload  json.RawMessage
}

// appendProposal is the gateway's single write path into the queue.
func (g *Gateway) appendProposal(ctx context.Context, op string, in proposalInput) (*ProposalRecord, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	// The queue is user-partitioned; the evaluator enforces scope for writes too.
	if _, err := g.authorize(op, policy.AccessRequest{
		Table:  string(schema.ImprovementProposals),
		UserID: in.userID,
	}); err != nil {
		return nil, err
	}

	payload, err := normalizePayload(in.payload)
	if err != nil {
		return nil, err
	}

	id := in.id
	if id == "" {
		id = g.newID()
	}
	rec := &ProposalRecord{
		ID:        id,
		UserID:    in.userID,
		Kind:      in.kind,
		TargetID:  in.targetID,
		Payload:   payload,
		Status:    StatusPendingReview,
		CreatedAt: g.timestamp(),
	}

	row := storage.Row{
		"id":         rec.ID,
		"user_id":    rec.UserID,
		"kind":       string(rec.Kind),
		"payload":    string(rec.Payload),
		"status":     rec.Status,
		"created_at": rec.CreatedAt,
	}
	if rec.TargetID != "" {
		row["target_id"] = rec.TargetID
	}

	if _, err := g.store.Insert(ctx, string(schema.ImprovementProposals), row); err != nil {
		return nil, g.storageErr(op, err)
	}

	g.logger.Info("proposal queued for review",
		zap.String("op", op),
		zap.String("proposal_id", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.String("user_id", rec.UserID),
	)
	return rec, nil
}

// normalizePayload requires a JSON object and returns it compacted.
func normalizePayload(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, invalidArgf("payload is required")
	}
	if trimmed[0] != '{' {
		return nil, invalidArgf("payload must be a JSON object")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, invalidArgf("payload is not valid JSON: %v", err)
	}
	if buf.Len() > MaxPayloadBytes {
		return nil, invalidArgf("payload is %d bytes, limit is %d", buf.Len(), MaxPayloadBytes)
	}
	return json.RawMessage(buf.Bytes()), nil
}
