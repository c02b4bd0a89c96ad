package cost

import "github.com/manash/clickgenius/pkg/models"

// Pricing is USD per million tokens. Image output is billed as output tokens.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var geminiPricing = map[string]Pricing{
	models.ModelFlashImage: {InputPerMillion: 0.30, OutputPerMillion: 30.00},
	models.ModelProImage:   {InputPerMillion: 2.00, OutputPerMillion: 120.00},
}

func GetPricing(model string) (Pricing, bool) {
	p, ok := geminiPricing[model]
	return p, ok
}
