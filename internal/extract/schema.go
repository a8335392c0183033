package extract

func labeledAmountList() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"label":  map[string]any{"type": "string", "minLength": 1},
				"amount": map[string]any{"type": "number"},
			},
			"required": []any{"label", "amount"},
		},
	}
}

func number() map[string]any { return map[string]any{"type": "number"} }

func rateSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"marginal":  number(),
			"effective": number(),
		},
	}
}

// RecordSchema returns the JSON schema a structured extraction response must
// conform to. A fresh map is returned on each call.
func RecordSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"year":          map[string]any{"type": "integer", "minimum": 1900, "maximum": 2099},
			"name":          map[string]any{"type": "string"},
			"filing_status": map[string]any{"type": "string"},
			"dependents": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":         map[string]any{"type": "string", "minLength": 1},
						"relationship": map[string]any{"type": "string"},
					},
					"required": []any{"name"},
				},
			},
			"income": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"items": labeledAmountList(),
					"total": number(),
				},
			},
			"federal": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agi":              number(),
					"deductions":       labeledAmountList(),
					"taxable_income":   number(),
					"tax":              number(),
					"additional_taxes": labeledAmountList(),
					"credits":          labeledAmountList(),
					"payments":         labeledAmountList(),
					"refund_or_owed":   number(),
				},
			},
			"states": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":           map[string]any{"type": "string", "minLength": 1},
						"agi":            number(),
						"deductions":     labeledAmountList(),
						"taxable_income": number(),
						"tax":            number(),
						"adjustments":    labeledAmountList(),
						"payments":       labeledAmountList(),
						"refund_or_owed": number(),
					},
					"required": []any{"name"},
				},
			},
			"summary": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"federal_amount": number(),
					"state_amounts": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"state":  map[string]any{"type": "string", "minLength": 1},
								"amount": number(),
							},
							"required": []any{"state", "amount"},
						},
					},
					"net_position": number(),
				},
			},
			"rates": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"federal":  rateSchema(),
					"state":    rateSchema(),
					"combined": rateSchema(),
				},
			},
		},
	}
}
