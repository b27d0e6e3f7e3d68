package inbound

import "time"

type SendCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type SendCodeResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

func (SendCodeResponse) Message() string {
	return "Verification code sent successfully."
}

type VerifyCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

type VerifyCodeResponse struct {
	Token string `json:"token"`
}

func (VerifyCodeResponse) Message() string {
	return "Phone number verified successfully"
}

type SessionResponse struct {
	PhoneNumber string    `json:"phoneNumber"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (SessionResponse) Message() string {
	return "Session is active"
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (HealthResponse) Message() string {
	return "OK"
}
