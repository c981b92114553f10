package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pulse-os/pulse-observer/internal/policy"
	"github.com/pulse-os/pulse-observer/internal/schema"
	"github.com/pulse-os/pulse-observer/internal/storage"
	"go.uber.org/zap"
)

// outcomeNamespace seeds deterministic ids for outcome proposals so the
// same (target, outcome) pair always maps to the same queue entry.
var outcomeNamespace = uuid.MustParse("6f1d2c3e-8a0b-4c5d-9e7f-a1b2c3d4e5f6")

// Outcome is a realized result for a prediction or proposal.
type Outcome struct {
	Value    string   `json:"value"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Note     string   `json:"note,omitempty"`
}

func (o Outcome) validate() error {
	if strings.TrimSpace(o.Value) == "" {
		return invalidArgf("outcome value is required")
	}
	if o.Accuracy != nil && (*o.Accuracy < 0 || *o.Accuracy > 1) {
		return invalidArgf("accuracy must be between 0 and 1, got %v", *o.Accuracy)
	}
	return nil
}

// Target kinds for RecordOutcome.
const (
	TargetPrediction = "prediction"
	TargetProposal   = "proposal"
)

// OutcomeRecord is the stored state after RecordOutcome.
type OutcomeRecord struct {
	TargetID   string   `json:"target_id"`
	TargetKind string   `json:"target_kind"`
	Value      string   `json:"value"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	// Note is set for proposal outcomes only; predictions have no column
	// to keep it.
	Note       string `json:"note,omitempty"`
	RecordedAt string `json:"recorded_at,omitempty"`
	// AlreadyRecorded is true when the call was a no-op because the same
	// outcome was stored before.
	AlreadyRecorded bool            `json:"already_recorded"`
	Proposal        *ProposalRecord `json:"proposal,omitempty"`
}

var predictionOutcomeColumns = []string{"id", "actual_value", "accuracy_score", "outcome_recorded_at"}

// RecordOutcome attaches outcome to the caller's prediction targetID, or,
// when targetID names one of the caller's proposals, queues an outcome
// proposal referencing it. Repeating a call with the same outcome is a
// no-op that returns the stored value. Unknown targets yield ErrNotFound.
func (g *Gateway) RecordOutcome(ctx context.Context, userID, targetID string, outcome Outcome) (*OutcomeRecord, error) {
	const op = "record_outcome"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(targetID) == "" {
		return nil, invalidArgf("target id is required")
	}
	if err := outcome.validate(); err != nil {
		return nil, err
	}

	dec, err := g.authorize(op, policy.AccessRequest{
		Table:   string(schema.Predictions),
		Columns: predictionOutcomeColumns,
		UserID:  userID,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}

	rows, err := g.selectDecision(ctx, dec, storage.Eq("id", targetID))
	if err != nil {
		return nil, g.storageErr(op, err)
	}
	if len(rows) > 0 {
		return g.recordPredictionOutcome(ctx, op, dec, rows[0], outcome)
	}

	return g.recordProposalOutcome(ctx, op, userID, targetID, outcome)
}

func (g *Gateway) recordPredictionOutcome(ctx context.Context, op string, dec policy.Decision, row storage.Row, outcome Outcome) (*OutcomeRecord, error) {
	targetID := fmt.Sprint(row["id"])
	if strings.TrimSpace(outcome.Note) != "" {
		return nil, invalidArgf("note is only kept for proposal outcomes; %q is a prediction", targetID)
	}
	current := predictionRecord(row)

	if current.RecordedAt != "" && current.Value == outcome.Value && sameAccuracy(current.Accuracy, outcome.Accuracy) {
		current.AlreadyRecorded = true
		return current, nil
	}
	if current.RecordedAt != "" {
		g.logger.Info("overwriting recorded outcome",
			zap.String("prediction_id", targetID),
			zap.String("previous", current.Value),
			zap.String("new", outcome.Value),
		)
	}

	patch := storage.Row{
		"actual_value":        outcome.Value,
		"outcome_recorded_at": g.timestamp(),
		"accuracy_score":      nil,
	}
	if outcome.Accuracy != nil {
		patch["accuracy_score"] = *outcome.Accuracy
	}

	updated, err := g.store.Update(ctx, storage.UpdateQuery{
		Table:   dec.Table,
		ID:      targetID,
		Patch:   patch,
		Filters: []storage.Filter{storage.Eq("user_id", dec.UserID)},
		Columns: dec.Columns,
	})
	if err != nil {
		return nil, g.storageErr(op, err)
	}

	g.logger.Info("outcome recorded",
		zap.String("prediction_id", targetID),
		zap.String("user_id", dec.UserID),
	)
	return predictionRecord(updated), nil
}

func (g *Gateway) recordProposalOutcome(ctx context.Context, op, userID, targetID string, outcome Outcome) (*OutcomeRecord, error) {
	dec, err := g.authorize(op, policy.AccessRequest{
		Table:   string(schema.ImprovementProposals),
		Columns: []string{"id", "kind", "created_at"},
		UserID:  userID,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}

	rows, err := g.selectDecision(ctx, dec, storage.Eq("id", targetID))
	if err != nil {
		return nil, g.storageErr(op, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: prediction or proposal %q: %w", op, targetID, ErrNotFound)
	}
	if ProposalKind(fmt.Sprint(rows[0]["kind"])) == KindOutcome {
		return nil, invalidArgf("%q is itself an outcome record", targetID)
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("%s: encoding outcome: %w", op, err)
	}
	outcomeID := uuid.NewSHA1(outcomeNamespace, []byte(userID+"\x00"+targetID+"\x00"+string(payload))).String()

	existing, err := g.findProposal(ctx, dec, outcomeID)
	if err != nil {
		return nil, g.storageErr(op, err)
	}
	if existing != nil {
		return proposalOutcome(targetID, outcome, fmt.Sprint(existing["created_at"]), true, nil), nil
	}

	rec, err := g.appendProposal(ctx, op, proposalInput{
		id:       outcomeID,
		userID:   userID,
		kind:     KindOutcome,
		targetID: targetID,
		payload:  payload,
	})
	if err != nil {
		var se *StorageError
		if !errors.As(err, &se) {
			return nil, err
		}
		// A concurrent identical call may have won the insert.
		existing, lookupErr := g.findProposal(ctx, dec, outcomeID)
		if lookupErr != nil || existing == nil {
			return nil, err
		}
		return proposalOutcome(targetID, outcome, fmt.Sprint(existing["created_at"]), true, nil), nil
	}
	return proposalOutcome(targetID, outcome, rec.CreatedAt, false, rec), nil
}

// findProposal returns the caller's proposal with id, or nil.
func (g *Gateway) findProposal(ctx context.Context, dec policy.Decision, id string) (storage.Row, error) {
	rows, err := g.selectDecision(ctx, dec, storage.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func proposalOutcome(targetID string, o Outcome, at string, dup bool, rec *ProposalRecord) *OutcomeRecord {
	return &OutcomeRecord{
		TargetID:        targetID,
		TargetKind:      TargetProposal,
		Value:           o.Value,
		Accuracy:        o.Accuracy,
		Note:            o.Note,
		RecordedAt:      at,
		AlreadyRecorded: dup,
		Proposal:        rec,
	}
}

func predictionRecord(row storage.Row) *OutcomeRecord {
	rec := &OutcomeRecord{
		TargetID:   fmt.Sprint(row["id"]),
		TargetKind: TargetPrediction,
		Value:      stringValue(row["actual_value"]),
		RecordedAt: stringValue(row["outcome_recorded_at"]),
	}
	if f, ok := floatValue(row["accuracy_score"]); ok {
		rec.Accuracy = &f
	}
	return rec
}

func sameAccuracy(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
