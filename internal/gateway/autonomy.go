package gateway

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pulse-os/pulse-observer/internal/policy"
	"github.com/pulse-os/pulse-observer/internal/schema"
	"go.uber.org/zap"
)

// DefaultAutonomyLevel is reported for users without a grant and for
// grants naming an unknown tier.
const DefaultAutonomyLevel = "L0"

// levelsCacheKey is the single key under which reference rows are cached.
const levelsCacheKey = "levels"

// AutonomyLevel is one row of the global tier reference table.
type AutonomyLevel struct {
	Level            string `json:"level"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	RequiresApproval bool   `json:"requires_approval"`
}

// AutonomyStatus is the caller's current tier.
type AutonomyStatus struct {
	UserID           string `json:"user_id"`
	Level            string `json:"level"`
	Name             string `json:"name,omitempty"`
	Description      string `json:"description,omitempty"`
	RequiresApproval bool   `json:"requires_approval"`
	Reason           string `json:"reason"`
	Since            string `json:"since,omitempty"`
}

// CheckAutonomy looks up the caller's autonomy tier. It never changes it.
func (g *Gateway) CheckAutonomy(ctx context.Context, userID string) (*AutonomyStatus, error) {
	const op = "check_autonomy"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	dec, err := g.authorize(op, policy.AccessRequest{
		Table:   string(schema.UserAutonomy),
		Columns: []string{"level", "reason", "granted_at"},
		UserID:  userID,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}

	rows, err := g.selectDecision(ctx, dec)
	if err != nil {
		return nil, g.storageErr(op, err)
	}

	status := &AutonomyStatus{UserID: userID, Level: DefaultAutonomyLevel, RequiresApproval: true}
	if len(rows) == 0 {
		status.Reason = "no autonomy grant recorded; defaulting to " + DefaultAutonomyLevel
	} else {
		status.Level = stringValue(rows[0]["level"])
		status.Reason = stringValue(rows[0]["reason"])
		status.Since = stringValue(rows[0]["granted_at"])
		if status.Reason == "" {
			status.Reason = "granted"
		}
	}

	levels, err := g.autonomyLevels(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		// The tier itself is known; names are decoration.
		g.logger.Warn("autonomy reference data unavailable", zap.Error(err))
		return status, nil
	}

	lvl, ok := levels[status.Level]
	if !ok && status.Level != DefaultAutonomyLevel {
		status.Reason = fmt.Sprintf("recorded level %q is not a known tier; treating as %s", status.Level, DefaultAutonomyLevel)
		status.Level = DefaultAutonomyLevel
		lvl, ok = levels[DefaultAutonomyLevel]
	}
	if ok {
		status.Name = lvl.Name
		status.Description = lvl.Description
		status.RequiresApproval = lvl.RequiresApproval
	}
	return status, nil
}

// autonomyLevels returns the tier reference table, cached for the
// configured TTL.
func (g *Gateway) autonomyLevels(ctx context.Context) (map[string]AutonomyLevel, error) {
	const op = "check_autonomy"
	return g.levels.GetOrLoad(levelsCacheKey, func() (map[string]AutonomyLevel, error) {
		dec, err := g.authorize(op, policy.AccessRequest{
			Table:   string(schema.AutonomyLevels),
			Columns: []string{"level", "name", "description", "requires_approval"},
		})
		if err != nil {
			return nil, err
		}
		rows, err := g.selectDecision(ctx, dec)
		if err != nil {
			return nil, g.storageErr(op, err)
		}
		out := make(map[string]AutonomyLevel, len(rows))
		for _, r := range rows {
			lvl := AutonomyLevel{
				Level:            stringValue(r["level"]),
				Name:             stringValue(r["name"]),
				Description:      stringValue(r["description"]),
				RequiresApproval: boolValue(r["requires_approval"]),
			}
			out[lvl.Level] = lvl
		}
		return out, nil
	})
}

// AutonomyLevels returns the cached tier reference table.
func (g *Gateway) AutonomyLevels(ctx context.Context) ([]AutonomyLevel, error) {
	if err := checkCtx(ctx, "autonomy_levels"); err != nil {
		return nil, err
	}
	levels, err := g.autonomyLevels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AutonomyLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b AutonomyLevel) int { return strings.Compare(a.Level, b.Level) })
	return out, nil
}
