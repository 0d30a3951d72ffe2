package pricing

// DefaultPrices returns the built-in price table, current as of the last
// release. Deployments override it in configuration; rates here exist so a
// bare install still makes sensible routing decisions.
func DefaultPrices() map[string]map[string]Price {
	return map[string]map[string]Price{
		"anthropic": {
			"claude-3-opus-20240229": {
				InputCostPerToken:  0.000015,
				OutputCostPerToken: 0.000075,
			},
			"claude-3-sonnet-20240229": {
				InputCostPerToken:  0.000003,
				OutputCostPerToken: 0.000015,
			},
			"claude-3-haiku-20240307": {
				InputCostPerToken:  0.00000025,
				OutputCostPerToken: 0.00000125,
			},
			"claude-3-5-sonnet-20240620": {
				InputCostPerToken:  0.000003,
				OutputCostPerToken: 0.000013,
			},
		},
		"openai": {
			"gpt-4": {
				InputCostPerToken:  0.00003,
				OutputCostPerToken: 0.00006,
			},
			"gpt-4-turbo": {
				InputCostPerToken:  0.00001,
				OutputCostPerToken: 0.00003,
			},
			"gpt-4o": {
				InputCostPerToken:  0.00001,
				OutputCostPerToken: 0.00003,
			},
			"gpt-3.5-turbo": {
				InputCostPerToken:  0.0000005,
				OutputCostPerToken: 0.0000015,
			},
		},
		// Local inference is free.
		"ollama": {
			"llama3": {},
		},
		// The simulated provider is free.
		"simulated": {
			"simulated-standard": {},
		},
	}
}
