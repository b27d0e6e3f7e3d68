package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type uc interface {
	RequestCode(ctx context.Context, in usecase.RequestCodeInput) (*usecase.RequestCodeOutput, error)
	VerifyCode(ctx context.Context, in usecase.VerifyCodeInput) (*usecase.VerifyCodeOutput, error)
	Session(ctx context.Context) (*entity.Session, error)
}

// RegisterHTTPEndpoint mounts the phone authentication routes on r.
// sendCodeMws wrap only the send-code route.
func RegisterHTTPEndpoint(r *router.Router, uc uc, sendCodeMws ...router.Middleware) {
	end := &HTTPEndpoint{uc: uc}

	r.GET("/health", end.Health)

	r.POST("/auth/phone/send-code", end.SendCode, sendCodeMws...)
	r.POST("/auth/phone/verify-code", end.VerifyCode)

	r.GET("/auth/session", end.Session) // need authenticated
}
