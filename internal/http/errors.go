package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"linkshorty/internal/apperr"
)

type errorResponse struct {
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindDuplicateUser, apperr.KindInvalidCredentials:
		return http.StatusBadRequest
	case apperr.KindMissingToken, apperr.KindInvalidToken, apperr.KindUserGone, apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err and aborts the chain. Causes of internal errors are
// logged and only echoed to the client in debug mode.
func (h *Handler) writeError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("Internal server error", err)
	}

	resp := errorResponse{Message: appErr.Message, Errors: appErr.Fields}
	entry := h.logger.WithFields(logrus.Fields{
		requestIDKey: c.GetString(requestIDKey),
		"kind":       appErr.Kind.String(),
	})

	if appErr.Kind == apperr.KindInternal {
		entry.WithError(appErr.Err).Error(appErr.Message)
		if h.debug && appErr.Err != nil {
			resp.Error = appErr.Err.Error()
		}
	} else if appErr.Err != nil {
		entry.WithError(appErr.Err).Debug(appErr.Message)
	}

	c.AbortWithStatusJSON(statusFor(appErr.Kind), resp)
}
