package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weekpilot/weekpilot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalJSONColumn serializes v for a TEXT column, returning "" for nil.
func marshalJSONColumn(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal column failed: %w", err)
	}
	return string(data), nil
}

// unmarshalJSONColumn deserializes a TEXT column into dst, tolerating empty
// values. Corrupt payloads are logged and skipped rather than failing reads.
func unmarshalJSONColumn(raw sql.NullString, dst interface{}, context string) {
	if !raw.Valid || raw.String == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		slog.Error("store: JSON column unmarshal failed", "context", context, "error", err)
	}
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSession scans a ConversationSession row.
func scanSession(row rowScanner) (models.ConversationSession, error) {
	var s models.ConversationSession
	var messagesJSON, targetsJSON, weeklyPlanID sql.NullString
	var continuation int
	err := row.Scan(
		&s.ID, &s.UserID, &messagesJSON, &s.Status, &s.Iteration, &continuation,
		&targetsJSON, &weeklyPlanID, &s.PlanAttempts, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return s, err
	}
	s.ContinuationFlag = continuation != 0
	s.WeeklyPlanID = weeklyPlanID.String
	unmarshalJSONColumn(messagesJSON, &s.Messages, "session.messages")
	unmarshalJSONColumn(targetsJSON, &s.ExtractedTargets, "session.extracted_targets")
	return s, nil
}

// scanWeeklyPlan scans a WeeklyPlan row.
func scanWeeklyPlan(row rowScanner) (models.WeeklyPlan, error) {
	var p models.WeeklyPlan
	var sessionID, targetsJSON, daysJSON sql.NullString
	err := row.Scan(
		&p.ID, &p.UserID, &sessionID, &p.WeekStart, &p.WeekEnd,
		&targetsJSON, &daysJSON, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		return p, err
	}
	p.SessionID = sessionID.String
	unmarshalJSONColumn(targetsJSON, &p.WeeklyTargets, "plan.weekly_targets")
	unmarshalJSONColumn(daysJSON, &p.Days, "plan.days")
	return p, nil
}

// scanProfile scans a UserProfile row.
func scanProfile(row rowScanner) (models.UserProfile, error) {
	var p models.UserProfile
	var name, role, workHours, focusJSON, constraints, timezone sql.NullString
	err := row.Scan(
		&p.UserID, &name, &role, &workHours, &focusJSON, &constraints, &timezone,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Name = name.String
	p.Role = role.String
	p.WorkHours = workHours.String
	p.Constraints = constraints.String
	p.Timezone = timezone.String
	unmarshalJSONColumn(focusJSON, &p.FocusAreas, "profile.focus_areas")
	return p, nil
}

// scanJob scans a Job row.
func scanJob(row rowScanner) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}
