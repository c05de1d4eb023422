package dto

type RegisterPushTokenRequest struct {
	Token string `json:"token"`
}

type RegisterPushTokenResponse struct {
	TraceID string `json:"traceId"`
	Status  string `json:"status"`
}
