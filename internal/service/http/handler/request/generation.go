package request

type Generation struct {
	Mode         string         `json:"mode" binding:"required"`
	Model        string         `json:"model" binding:"required"`
	Prompt       string         `json:"prompt"`
	Params       map[string]any `json:"params"`
	SourceImages []string       `json:"source_images"`
}

type Limits struct {
	DailyLimit   float64 `json:"daily_limit"`
	WeeklyLimit  float64 `json:"weekly_limit"`
	MonthlyLimit float64 `json:"monthly_limit"`
}
