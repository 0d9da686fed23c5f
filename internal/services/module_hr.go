package services

import (
	"fmt"
	"strings"

	"github.com/huangang/erpsettings/internal/models"
)

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// NewHRSettingsHandler exposes leave, overtime and probation settings.
func NewHRSettingsHandler() *BaseModuleHandler {
	return &BaseModuleHandler{
		Module: "hr",
		View:   "hr.settings",
		Fields: []FieldDescriptor{
			{Key: "work_week_days", Label: "Work Week", Type: models.TypeArray, InputType: "multiselect",
				Options: []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"},
				Rules:   []string{"array", "min:1", "max:7"}, Required: true, SortOrder: 1,
				Default: []any{"monday", "tuesday", "wednesday", "thursday", "friday"}},
			{Key: "annual_leave_days", Label: "Annual Leave (days)", Type: models.TypeInteger, InputType: "number",
				Rules: []string{"integer", "min:0", "max:60"}, Required: true, SortOrder: 2, Default: 20},
			{Key: "max_carry_over_days", Label: "Max Carry-over (days)", Type: models.TypeInteger, InputType: "number",
				Rules: []string{"integer", "min:0", "max:60"}, SortOrder: 3, Default: 5},
			{Key: "overtime_enabled", Label: "Track Overtime", Type: models.TypeBoolean, InputType: "toggle",
				Rules: []string{"boolean"}, SortOrder: 4, Default: true},
			{Key: "overtime_rate_percent", Label: "Overtime Rate (%)", Type: models.TypeInteger, InputType: "number",
				Rules: []string{"integer", "min:100", "max:300"}, SortOrder: 5, Default: 150},
			{Key: "probation_months", Label: "Probation Period (months)", Type: models.TypeInteger, InputType: "number",
				Rules: []string{"integer", "min:0", "max:12"}, SortOrder: 6, Default: 3},
		},
		Rules: []CrossFieldRule{hrWorkWeekRule, hrCarryOverRule},
	}
}

func hrWorkWeekRule(data map[string]any) map[string][]string {
	days, ok := data["work_week_days"].([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		name := strings.ToLower(toString(d))
		if !weekdays[name] {
			return map[string][]string{"work_week_days": {fmt.Sprintf("%q is not a day of the week.", toString(d))}}
		}
		if seen[name] {
			return map[string][]string{"work_week_days": {fmt.Sprintf("%q is listed more than once.", name)}}
		}
		seen[name] = true
	}
	return nil
}

// Carry-over cannot exceed the yearly allowance.
func hrCarryOverRule(data map[string]any) map[string][]string {
	carry, ok1 := toInt(data["max_carry_over_days"])
	annual, ok2 := toInt(data["annual_leave_days"])
	if _, present := data["max_carry_over_days"]; !present || !ok1 || !ok2 {
		return nil
	}
	if carry > annual {
		return map[string][]string{
			"max_carry_over_days": {"The max carry-over may not exceed the annual leave allowance."},
		}
	}
	return nil
}
