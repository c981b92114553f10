package gateway

import (
	"context"
	"time"

	"github.com/pulse-os/pulse-observer/internal/policy"
	"github.com/pulse-os/pulse-observer/internal/schema"
	"github.com/pulse-os/pulse-observer/internal/storage"
)

// Calibration assessment thresholds.
const (
	// minResolvedForAssessment is the sample size below which no verdict is given.
	minResolvedForAssessment = 5
	// calibrationTolerance is the confidence/accuracy gap still called calibrated.
	calibrationTolerance = 0.10
	// maxCalibrationPages bounds one report at this many pages of
	// MaxQueryLimit buckets each.
	maxCalibrationPages = 100
)

// Assessments.
const (
	AssessInsufficientData = "insufficient_data"
	AssessWellCalibrated   = "well_calibrated"
	AssessOverconfident    = "overconfident"
	AssessUnderconfident   = "underconfident"
)

// periodLayout is the month bucket format of the calibration view.
const periodLayout = "2006-01"

// CalibrationFilter narrows AnalyzeCalibration. Periods are "YYYY-MM",
// inclusive; empty fields do not filter.
type CalibrationFilter struct {
	PredictionType string `json:"prediction_type,omitempty"`
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
}

func (f CalibrationFilter) validate() error {
	for _, p := range []string{f.From, f.To} {
		if p == "" {
			continue
		}
		if _, err := time.Parse(periodLayout, p); err != nil {
			return invalidArgf("period %q must be YYYY-MM", p)
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return invalidArgf("period range is inverted: %s > %s", f.From, f.To)
	}
	return nil
}

// CalibrationBucket is one row of the calibration view.
type CalibrationBucket struct {
	PredictionType   string   `json:"prediction_type"`
	Period           string   `json:"period"`
	Total            int      `json:"total_predictions"`
	Resolved         int      `json:"resolved_predictions"`
	MeanConfidence   *float64 `json:"mean_confidence,omitempty"`
	MeanAccuracy     *float64 `json:"mean_accuracy,omitempty"`
	CalibrationError *float64 `json:"calibration_error,omitempty"`
}

// CalibrationReport aggregates buckets into overall statistics. Means are
// weighted by total predictions (confidence) or resolved predictions
// (accuracy, calibration error). Totals cover every bucket in the filtered
// range; if the range exceeds the page budget, Truncated is set and no
// assessment is given.
type CalibrationReport struct {
	UserID           string              `json:"user_id"`
	Filter           CalibrationFilter   `json:"filter"`
	Buckets          []CalibrationBucket `json:"buckets"`
	Total            int                 `json:"total_predictions"`
	Resolved         int                 `json:"resolved_predictions"`
	ResolutionRate   float64             `json:"resolution_rate"`
	MeanConfidence   *float64            `json:"mean_confidence,omitempty"`
	MeanAccuracy     *float64            `json:"mean_accuracy,omitempty"`
	CalibrationError *float64            `json:"calibration_error,omitempty"`
	Assessment       string              `json:"assessment"`
	Truncated        bool                `json:"truncated"`
}

// AnalyzeCalibration reads the caller's pre-aggregated calibration view.
// It never touches per-prediction rows. The view is read in pages of the
// effective limit until exhausted, so totals never silently cover a prefix.
func (g *Gateway) AnalyzeCalibration(ctx context.Context, userID string, filter CalibrationFilter) (*CalibrationReport, error) {
	const op = "analyze_calibration"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}

	dec, err := g.authorize(op, policy.AccessRequest{
		Table:  string(schema.CalibrationSummary),
		UserID: userID,
		Limit:  g.evaluator.MaxQueryLimit(),
	})
	if err != nil {
		return nil, err
	}

	var extra []storage.Filter
	if filter.PredictionType != "" {
		extra = append(extra, storage.Eq("prediction_type", filter.PredictionType))
	}
	if filter.From != "" {
		extra = append(extra, storage.Filter{Column: "period", Op: storage.OpGte, Value: filter.From})
	}
	if filter.To != "" {
		extra = append(extra, storage.Filter{Column: "period", Op: storage.OpLte, Value: filter.To})
	}

	rows, truncated, err := g.readBuckets(ctx, dec, extra)
	if err != nil {
		return nil, g.storageErr(op, err)
	}

	report := &CalibrationReport{
		UserID:    userID,
		Filter:    filter,
		Buckets:   make([]CalibrationBucket, 0, len(rows)),
		Truncated: truncated,
	}
	for _, r := range rows {
		report.Buckets = append(report.Buckets, bucketFromRow(r))
	}
	report.summarize()
	return report, nil
}

// readBuckets pages through the view newest period first. Buckets are
// unique per (period, prediction_type), which gives the pages a total order.
func (g *Gateway) readBuckets(ctx context.Context, dec policy.Decision, extra []storage.Filter) ([]storage.Row, bool, error) {
	q := storage.SelectQuery{
		Table:   dec.Table,
		Columns: dec.Columns,
		Filters: append([]storage.Filter{storage.Eq("user_id", dec.UserID)}, extra...),
		OrderBy: "period",
		Desc:    true,
		ThenBy:  []string{"prediction_type"},
		Limit:   dec.EffectiveLimit,
	}

	var all []storage.Row
	for page := 0; page < maxCalibrationPages; page++ {
		q.Offset = page * q.Limit
		rows, err := g.store.Select(ctx, q)
		if err != nil {
			return nil, false, err
		}
		all = append(all, rows...)
		if len(rows) < q.Limit {
			return all, false, nil
		}
	}
	return all, true, nil
}

func bucketFromRow(r storage.Row) CalibrationBucket {
	b := CalibrationBucket{
		PredictionType: stringValue(r["prediction_type"]),
		Period:         stringValue(r["period"]),
		Total:          intValue(r["total_predictions"]),
		Resolved:       intValue(r["resolved_predictions"]),
	}
	if f, ok := floatValue(r["mean_confidence"]); ok {
		b.MeanConfidence = &f
	}
	if f, ok := floatValue(r["mean_accuracy"]); ok {
		b.MeanAccuracy = &f
	}
	if f, ok := floatValue(r["calibration_error"]); ok {
		b.CalibrationError = &f
	}
	return b
}

// summarize fills the report's totals, weighted means and assessment.
func (r *CalibrationReport) summarize() {
	var confSum, accSum, errSum float64
	var confWeight, accWeight, errWeight int

	for _, b := range r.Buckets {
		r.Total += b.Total
		r.Resolved += b.Resolved
		if b.MeanConfidence != nil {
			confSum += *b.MeanConfidence * float64(b.Total)
			confWeight += b.Total
		}
		if b.MeanAccuracy != nil {
			accSum += *b.MeanAccuracy * float64(b.Resolved)
			accWeight += b.Resolved
		}
		if b.CalibrationError != nil {
			errSum += *b.CalibrationError * float64(b.Resolved)
			errWeight += b.Resolved
		}
	}

	if r.Total > 0 {
		r.ResolutionRate = float64(r.Resolved) / float64(r.Total)
	}
	r.MeanConfidence = weightedMean(confSum, confWeight)
	r.MeanAccuracy = weightedMean(accSum, accWeight)
	r.CalibrationError = weightedMean(errSum, errWeight)

	switch {
	case r.Truncated:
		r.Assessment = AssessInsufficientData
	case r.Resolved < minResolvedForAssessment || r.MeanConfidence == nil || r.MeanAccuracy == nil:
		r.Assessment = AssessInsufficientData
	case *r.MeanConfidence-*r.MeanAccuracy > calibrationTolerance:
		r.Assessment = AssessOverconfident
	case *r.MeanAccuracy-*r.MeanConfidence > calibrationTolerance:
		r.Assessment = AssessUnderconfident
	default:
		r.Assessment = AssessWellCalibrated
	}
}

func weightedMean(sum float64, weight int) *float64 {
	if weight == 0 {
		return nil
	}
	m := sum / float64(weight)
	return &m
}
