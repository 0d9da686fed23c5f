package services

import (
	"fmt"

	"github.com/huangang/erpsettings/internal/models"
)

// NewCRMSettingsHandler exposes lead and pipeline settings of the CRM module.
func NewCRMSettingsHandler() *BaseModuleHandler {
	return &BaseModuleHandler{
		Module: "crm",
		View:   "crm.settings",
		Fields: []FieldDescriptor{
			{Key: "lead_sources", Label: "Lead Sources", Type: models.TypeArray, InputType: "tags",
				Rules: []string{"array", "min:1"}, Required: true, SortOrder: 1,
				Default: []any{"website", "referral", "campaign", "cold_call"}},
			{Key: "pipeline_stages", Label: "Pipeline Stages", Type: models.TypeArray, InputType: "tags",
				Rules: []string{"array", "min:2", "max:12"}, Required: true, SortOrder: 2,
				Default: []any{"new", "qualified", "proposal", "won", "lost"}},
			{Key: "default_lead_status", Label: "Default Lead Status", Type: models.TypeString, InputType: "text",
				Rules: []string{"string", "max:50"}, SortOrder: 3, Default: "new"},
			{Key: "auto_assign_leads", Label: "Auto-assign Leads", Type: models.TypeBoolean, InputType: "toggle",
				Rules: []string{"boolean"}, SortOrder: 4, Default: false},
			{Key: "assignment_strategy", Label: "Assignment Strategy", Type: models.TypeString, InputType: "select",
				Options: []string{"round_robin", "load_balanced", "manual"},
				Rules:   []string{"string", "in:round_robin,load_balanced,manual"}, SortOrder: 5, Default: "manual"},
			{Key: "follow_up_days", Label: "Follow-up Reminder (days)", Type: models.TypeInteger, InputType: "number",
				Rules: []string{"integer", "min:1", "max:90"}, SortOrder: 6, Default: 3},
		},
		Rules: []CrossFieldRule{crmAssignmentRule, crmLeadStatusRule},
	}
}

// Auto-assignment needs a strategy that actually assigns.
func crmAssignmentRule(data map[string]any) map[string][]string {
	auto, ok := data["auto_assign_leads"]
	if !ok {
		return nil
	}
	enabled, _ := toBool(auto)
	if enabled && toString(data["assignment_strategy"]) == "manual" {
		return map[string][]string{
			"assignment_strategy": {"The assignment strategy cannot be manual when auto-assign is enabled."},
		}
	}
	return nil
}

// The default lead status must be one of the submitted pipeline stages.
func crmLeadStatusRule(data map[string]any) map[string][]string {
	status, hasStatus := data["default_lead_status"]
	stages, hasStages := data["pipeline_stages"].([]any)
	if !hasStatus || !hasStages {
		return nil
	}
	for _, s := range stages {
		if toString(s) == toString(status) {
			return nil
		}
	}
	return map[string][]string{
		"default_lead_status": {fmt.Sprintf("The default lead status must be one of the pipeline stages (%v).", stages)},
	}
}
