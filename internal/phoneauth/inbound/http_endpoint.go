package inbound

import (
	"github.com/shandysiswandi/otpgate/internal/phoneauth/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

// HTTPEndpoint exposes HTTP handlers for the phone verification flow.
type HTTPEndpoint struct {
	uc uc
}

// SendCode issues a verification code to the requested phone number.
func (h *HTTPEndpoint) SendCode(r *router.Request) (any, error) {
	var req SendCodeRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.RequestCode(r.Context(), usecase.RequestCodeInput{
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		return nil, err
	}

	return SendCodeResponse{ExpiresAt: resp.ExpiresAt}, nil
}

// VerifyCode checks a code and returns a session token on success.
func (h *HTTPEndpoint) VerifyCode(r *router.Request) (any, error) {
	var req VerifyCodeRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.VerifyCode(r.Context(), usecase.VerifyCodeInput{
		PhoneNumber: req.PhoneNumber,
		Code:        req.Code,
	})
	if err != nil {
		return nil, err
	}

	return VerifyCodeResponse{Token: resp.Token}, nil
}

func (h *HTTPEndpoint) Session(r *router.Request) (any, error) {
	sess, err := h.uc.Session(r.Context())
	if err != nil {
		return nil, err
	}

	return SessionResponse{PhoneNumber: sess.PhoneNumber, ExpiresAt: sess.ExpiresAt}, nil
}

func (h *HTTPEndpoint) Health(*router.Request) (any, error) {
	return HealthResponse{Status: "ok"}, nil
}
