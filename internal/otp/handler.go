package otp

import (
	"github.com/gin-gonic/gin"
	"github.com/richxcame/dispatch-core/pkg/response"
	"github.com/richxcame/dispatch-core/pkg/validation"
)

// Handler exposes the HTTP surface used by the phone auth flow.
type Handler struct {
	svc *Service
}

// NewHandler builds an otp Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the OTP request/verify endpoints.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/auth/request-otp", h.RequestOTP)
	router.POST("/auth/verify-otp", h.VerifyOTP)
}

// RequestOTP is `POST /auth/request-otp`.
func (h *Handler) RequestOTP(c *gin.Context) {
	var body validation.RequestOTPRequest
	if !response.BindAndValidate(c, &body) {
		return
	}

	result, err := h.svc.RequestOTP(c.Request.Context(), body.Phone)
	if response.HandleServiceError(c, err, "failed to request otp") {
		return
	}
	response.OK(c, result)
}

// VerifyOTP is `POST /auth/verify-otp`.
func (h *Handler) VerifyOTP(c *gin.Context) {
	var body validation.VerifyOTPRequest
	if !response.BindAndValidate(c, &body) {
		return
	}

	result, err := h.svc.VerifyOTP(c.Request.Context(), body.Phone, body.Code)
	if response.HandleServiceError(c, err, "failed to verify otp") {
		return
	}
	response.OK(c, result)
}
