package models

import (
	"encoding/json"
	"testing"
)

func TestDecodeSetContinuationFlag(t *testing.T) {
	cmd, err := DecodePlannerCommand("set_continuation_flag", json.RawMessage(`{"continueConversation":true}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	flag, ok := cmd.(SetContinuationFlagCommand)
	if !ok {
		t.Fatalf("expected SetContinuationFlagCommand, got %T", cmd)
	}
	if !flag.ContinueConversation {
		t.Error("expected continueConversation=true")
	}
}

func TestDecodeSaveWeeklyPlan(t *testing.T) {
	args := json.RawMessage(`{
		"weeklyTargets": ["finish report", "gym 3x"],
		"days": {
			"monday": {"date": "2026-08-31", "tasks": [{"time": "09:00", "task": "draft report", "duration": 90, "type": "work"}]}
		}
	}`)
	cmd, err := DecodePlannerCommand("save_weekly_plan", args)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	plan, ok := cmd.(SaveWeeklyPlanCommand)
	if !ok {
		t.Fatalf("expected SaveWeeklyPlanCommand, got %T", cmd)
	}
	if len(plan.WeeklyTargets) != 2 || plan.WeeklyTargets[0] != "finish report" {
		t.Errorf("unexpected targets %v", plan.WeeklyTargets)
	}
	day, ok := plan.Days["monday"]
	if !ok || len(day.Tasks) != 1 {
		t.Fatalf("unexpected days payload %v", plan.Days)
	}
	if day.Tasks[0].Duration != 90 || day.Tasks[0].Type != TaskTypeWork {
		t.Errorf("unexpected task %+v", day.Tasks[0])
	}
}

func TestDecodeMalformedArguments(t *testing.T) {
	if _, err := DecodePlannerCommand("set_continuation_flag", json.RawMessage(`{"continueConversation":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
	if _, err := DecodePlannerCommand("save_weekly_plan", json.RawMessage(`not json`)); err == nil {
		t.Error("expected error for non-JSON arguments")
	}
}

func TestDecodeUnknownFunction(t *testing.T) {
	if _, err := DecodePlannerCommand("delete_everything", json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for unrecognized function name")
	}
}

func TestDecodeSaveWeeklyPlanRejectsIncomplete(t *testing.T) {
	if _, err := DecodePlannerCommand("save_weekly_plan", json.RawMessage(`{"weeklyTargets":[],"days":{}}`)); err == nil {
		t.Error("expected error for empty plan payload")
	}
	args := json.RawMessage(`{"weeklyTargets":["a"],"days":{"monday":{"date":"2026-08-31","tasks":[{"task":"no time"}]}}}`)
	if _, err := DecodePlannerCommand("save_weekly_plan", args); err == nil {
		t.Error("expected error for task without time")
	}
}
