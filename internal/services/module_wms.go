package services

import (
	"github.com/huangang/erpsettings/internal/models"
)

// NewWMSSettingsHandler exposes warehouse and stock valuation settings.
func NewWMSSettingsHandler() *BaseModuleHandler {
	return &BaseModuleHandler{
		Module: "wms",
		View:   "wms.settings",
		Fields: []FieldDescriptor{
			{Key: "default_warehouse", Label: "Default Warehouse", Type: models.TypeString, InputType: "text",
				Rules: []string{"string", "max:50"}, Required: true, SortOrder: 1, Default: "MAIN"},
			{Key: "low_stock_threshold", Label: "Low Stock Threshold", Type: models.TypeInteger, InputType: "number",
				Rules: []string{"integer", "min:0"}, SortOrder: 2, Default: 10},
			{Key: "reorder_quantity", Label: "Reorder Quantity", Type: models.TypeInteger, InputType: "number",
				Rules: []string{"integer", "min:1"}, SortOrder: 3, Default: 50},
			{Key: "allow_negative_stock", Label: "Allow Negative Stock", Type: models.TypeBoolean, InputType: "toggle",
				Rules: []string{"boolean"}, SortOrder: 4, Default: false},
			{Key: "valuation_method", Label: "Valuation Method", Type: models.TypeString, InputType: "select",
				Options: []string{"fifo", "lifo", "average"},
				Rules:   []string{"string", "in:fifo,lifo,average"}, SortOrder: 5, Default: "fifo"},
		},
		Rules: []CrossFieldRule{wmsReorderRule},
	}
}

// A reorder must at least refill up to the low stock threshold.
func wmsReorderRule(data map[string]any) map[string][]string {
	qty, ok1 := toInt(data["reorder_quantity"])
	threshold, ok2 := toInt(data["low_stock_threshold"])
	if !ok1 || !ok2 {
		return nil
	}
	if qty < threshold {
		return map[string][]string{
			"reorder_quantity": {"The reorder quantity must be at least the low stock threshold."},
		}
	}
	return nil
}
