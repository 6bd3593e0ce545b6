package models

// Requests for the HTTP API. Defined in domain for consistency and reuse.

type ForecastHTTPRequest struct {
	Symbol      string `query:"symbol" json:"symbol" validate:"required"`
	AssetClass  string `query:"assetClass" json:"assetClass" default:"crypto" validate:"oneof=equity crypto"`
	HorizonDays int    `query:"horizonDays" json:"horizonDays" default:"7" validate:"gte=1,lte=90"`
	Model       string `query:"model" json:"model" default:"prophet" validate:"oneof=prophet arima simple"`
	DeadlineMS  int    `query:"deadlineMs" json:"deadlineMs" default:"0" validate:"gte=0,lte=120000"`
}

type SentimentHTTPRequest struct {
	Symbol     string `query:"symbol" json:"symbol" validate:"required"`
	AssetClass string `query:"assetClass" json:"assetClass" default:"crypto" validate:"oneof=equity crypto"`
	WindowDays int    `query:"windowDays" json:"windowDays" default:"30" validate:"gte=5,lte=365"`
}

type ControlHTTPRequest struct {
	Symbols []string `json:"symbols" validate:"omitempty,dive,required"`
}
