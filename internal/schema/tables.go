package schema

// --- Table enum ---

// Table names one queryable Omega table or view. The set is closed:
// every value the gateway accepts is one of the constants below.
type Table string

const (
	Signals              Table = "pulse_signals"
	Intents              Table = "pulse_intents"
	Drafts               Table = "pulse_drafts"
	Outcomes             Table = "pulse_outcomes"
	Predictions          Table = "pulse_predictions"
	CalibrationSummary   Table = "pulse_calibration_summary"
	Goals                Table = "pulse_goals"
	UserAutonomy         Table = "pulse_user_autonomy"
	ImprovementProposals Table = "pulse_improvement_proposals"
	Constraints          Table = "pulse_constraints"
	AutonomyLevels       Table = "pulse_autonomy_levels"
)

// knownTables lists every Table constant. ParseTable matches against it.
var knownTables = []Table{
	Signals,
	Intents,
	Drafts,
	Outcomes,
	Predictions,
	CalibrationSummary,
	Goals,
	UserAutonomy,
	ImprovementProposals,
	Constraints,
	AutonomyLevels,
}

// ParseTable converts a caller-supplied name into a Table. The match is
// exact and case-sensitive; anything else reports ok=false.
func ParseTable(name string) (Table, bool) {
	for _, t := range knownTables {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

// String implements fmt.Stringer.
func (t Table) String() string { return string(t) }

// --- Omega descriptors ---

// omegaDescriptors is the static source of truth for the default registry.
// Safe column lists leave out free text, JSON blobs and reasoning traces.
func omegaDescriptors() []TableDescriptor {
	return []TableDescriptor{
		{
			Name:        Signals,
			Description: "Raw inbound signals (calendar, CRM, journal) before intent detection",
			AllColumns:  []string{"id", "user_id", "source", "signal_type", "payload", "processed", "created_at"},
			SafeColumns: []string{"id", "user_id", "source", "signal_type", "processed", "created_at"},
		},
		{
			Name:        Intents,
			Description: "Intents inferred from signals, with model confidence",
			AllColumns:  []string{"id", "user_id", "signal_id", "intent_type", "confidence", "reasoning", "status", "created_at"},
			SafeColumns: []string{"id", "user_id", "signal_id", "intent_type", "confidence", "status", "created_at"},
		},
		{
			Name:        Drafts,
			Description: "Drafted actions awaiting user approval",
			AllColumns:  []string{"id", "user_id", "intent_id", "draft_type", "content", "metadata", "confidence", "status", "created_at"},
			SafeColumns: []string{"id", "user_id", "intent_id", "draft_type", "confidence", "status", "created_at"},
		},
		{
			Name:        Outcomes,
			Description: "What happened to each draft after the user acted on it",
			AllColumns:  []string{"id", "user_id", "draft_id", "outcome_type", "user_feedback", "metrics", "created_at"},
			SafeColumns: []string{"id", "user_id", "draft_id", "outcome_type", "created_at"},
		},
		{
			Name:        Predictions,
			Description: "Predictions made by the system and their realized outcomes",
			AllColumns: []string{
				"id", "user_id", "prediction_type", "predicted_value", "confidence", "context",
				"actual_value", "accuracy_score", "outcome_recorded_at", "created_at",
			},
			SafeColumns: []string{
				"id", "user_id", "prediction_type", "predicted_value", "confidence",
				"actual_value", "accuracy_score", "outcome_recorded_at", "created_at",
			},
		},
		{
			Name:        CalibrationSummary,
			Description: "Pre-aggregated calibration view over predictions, bucketed by type and month",
			AllColumns: []string{
				"user_id", "prediction_type", "period", "total_predictions", "resolved_predictions",
				"mean_confidence", "mean_accuracy", "calibration_error",
			},
			SafeColumns: []string{
				"user_id", "prediction_type", "period", "total_predictions", "resolved_predictions",
				"mean_confidence", "mean_accuracy", "calibration_error",
			},
		},
		{
			Name:        Goals,
			Description: "User goals with status and progress",
			AllColumns:  []string{"id", "user_id", "title", "description", "status", "priority", "due_date", "progress", "created_at", "updated_at"},
			SafeColumns: []string{"id", "user_id", "title", "status", "priority", "due_date", "progress", "created_at", "updated_at"},
		},
		{
			Name:        UserAutonomy,
			Description: "Current autonomy tier granted to each user",
			AllColumns:  []string{"user_id", "level", "reason", "granted_at", "updated_at"},
			SafeColumns: []string{"user_id", "level", "reason", "granted_at", "updated_at"},
		},
		{
			Name:        ImprovementProposals,
			Description: "Review queue of proposals appended by the observer; status is owned by the Guardian",
			AllColumns:  []string{"id", "user_id", "kind", "target_id", "payload", "status", "created_at"},
			SafeColumns: []string{"id", "user_id", "kind", "target_id", "status", "created_at"},
		},
		{
			Name:        Constraints,
			Description: "System-wide constraint definitions",
			AllColumns:  []string{"id", "name", "constraint_type", "description", "rule", "severity", "active", "created_at"},
			SafeColumns: []string{"id", "name", "constraint_type", "severity", "active", "created_at"},
			Global:      true,
		},
		{
			Name:        AutonomyLevels,
			Description: "Reference data for autonomy tiers L0-L3",
			AllColumns:  []string{"level", "name", "description", "allowed_actions", "requires_approval"},
			SafeColumns: []string{"level", "name", "description", "requires_approval"},
			Global:      true,
		},
	}
}
