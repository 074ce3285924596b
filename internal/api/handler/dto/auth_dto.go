package dto

type TokenRequest struct {
	Username string `json:"username"`
}
