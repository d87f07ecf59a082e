package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"sealpost/internal/domain"
	"sealpost/internal/services/outbound"
)

// mapDomainError converts a domain error into an appropriate echo.HTTPError.
func mapDomainError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, domain.ErrUnknownMailbox),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrKeyNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, domain.ErrMailboxExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())

	case errors.Is(err, outbound.ErrNoRecipients),
		errors.Is(err, domain.ErrBadSignature):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, domain.ErrAuthFailed):
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")

	case errors.Is(err, domain.ErrProviderUnavailable),
		errors.Is(err, domain.ErrCertificateMismatch):
		return echo.NewHTTPError(http.StatusBadGateway, "provider unavailable")

	case errors.Is(err, domain.ErrGatewayStopped),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrTooManySessions):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "timeout")

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
