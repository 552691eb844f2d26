// Package models defines command structures for LLM function calling.
package models

import (
	"encoding/json"
	"fmt"
)

// ToolName identifies a function the planning assistant may call.
type ToolName string

const (
	// ToolSetContinuationFlag signals whether the dialogue should keep
	// collecting information before planning.
	ToolSetContinuationFlag ToolName = "set_continuation_flag"
	// ToolSaveWeeklyPlan carries the final structured weekly plan.
	ToolSaveWeeklyPlan ToolName = "save_weekly_plan"
)

// SetContinuationFlagParams defines the arguments of the set_continuation_flag call.
type SetContinuationFlagParams struct {
	ContinueConversation bool `json:"continueConversation"` // true keeps collecting, false moves to planning
}

// SaveWeeklyPlanParams defines the arguments of the save_weekly_plan call.
type SaveWeeklyPlanParams struct {
	WeeklyTargets []string           `json:"weeklyTargets"` // free-text weekly goals
	Days          map[string]DayPlan `json:"days"`          // weekday name -> day plan
}

// Validate ensures the plan payload is complete enough to persist.
func (p *SaveWeeklyPlanParams) Validate() error {
	if len(p.WeeklyTargets) == 0 {
		return ErrEmptyWeeklyTargets
	}
	if len(p.Days) == 0 {
		return ErrEmptyPlanDays
	}
	for name, day := range p.Days {
		if err := day.Validate(); err != nil {
			return fmt.Errorf("invalid tasks for %s: %w", name, err)
		}
	}
	return nil
}

// PlannerCommand is the closed set of structured instructions the model
// may return alongside its text. A nil PlannerCommand means the reply
// carried no recognized function call.
type PlannerCommand interface {
	plannerCommand()
}

// SetContinuationFlagCommand is the decoded set_continuation_flag call.
type SetContinuationFlagCommand struct {
	ContinueConversation bool
}

func (SetContinuationFlagCommand) plannerCommand() {}

// SaveWeeklyPlanCommand is the decoded save_weekly_plan call.
type SaveWeeklyPlanCommand struct {
	WeeklyTargets []string
	Days          map[string]DayPlan
}

func (SaveWeeklyPlanCommand) plannerCommand() {}

// DecodePlannerCommand decodes a function call by name into the command
// variant. Unknown names and malformed argument payloads both return an
// error; callers treat that as "no command" so the textual reply still
// reaches the user.
func DecodePlannerCommand(name string, arguments json.RawMessage) (PlannerCommand, error) {
	switch ToolName(name) {
	case ToolSetContinuationFlag:
		var params SetContinuationFlagParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, fmt.Errorf("failed to parse set_continuation_flag arguments: %w", err)
		}
		return SetContinuationFlagCommand{ContinueConversation: params.ContinueConversation}, nil
	case ToolSaveWeeklyPlan:
		var params SaveWeeklyPlanParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, fmt.Errorf("failed to parse save_weekly_plan arguments: %w", err)
		}
		if err := params.Validate(); err != nil {
			return nil, fmt.Errorf("invalid save_weekly_plan arguments: %w", err)
		}
		return SaveWeeklyPlanCommand{WeeklyTargets: params.WeeklyTargets, Days: params.Days}, nil
	default:
		return nil, fmt.Errorf("unrecognized function name: %s", name)
	}
}
