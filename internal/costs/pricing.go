package costs

// Rate is the USD price per 1K tokens for one model
type Rate struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Pricing maps model names to token rates
type Pricing map[string]Rate

// DefaultPricing covers the built-in model tiers
// Unknown models fall back to the large tier so costs are never
// silently undercounted.
func DefaultPricing() Pricing {
	return Pricing{
		"relay-large": {InputPer1K: 0.0030, OutputPer1K: 0.0150},
		"relay-small": {InputPer1K: 0.0002, OutputPer1K: 0.0010},
	}
}

// rate resolves a model's rate with the large-tier fallback
func (p Pricing) rate(model string) Rate {
	if r, ok := p[model]; ok {
		return r
	}
	return p["relay-large"]
}

// StepCost computes the USD cost of one model call
func (p Pricing) StepCost(model string, tokensIn, tokensOut int) float64 {
	r := p.rate(model)
	return float64(tokensIn)/1000*r.InputPer1K + float64(tokensOut)/1000*r.OutputPer1K
}

// Savings computes the cost avoided by routing to a cheaper model
// Returns zero when the fallback is not actually cheaper, so recorded
// savings are never negative.
func (p Pricing) Savings(primaryModel, usedModel string, tokensIn, tokensOut int) float64 {
	saved := p.StepCost(primaryModel, tokensIn, tokensOut) - p.StepCost(usedModel, tokensIn, tokensOut)
	if saved < 0 {
		return 0
	}
	return saved
}
