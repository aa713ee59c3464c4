package httpdto

type UnreadNotificationsResponse struct {
	Count int64 `json:"count"`
}
