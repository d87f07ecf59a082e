package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"sealpost/internal/domain"
)

type handlers struct {
	session Session
}

type accountResponse struct {
	Username       string `json:"username"`
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	Fingerprint    string `json:"fingerprint,omitempty"`
	BackgroundJobs bool   `json:"background_jobs"`
}

type createMailboxRequest struct {
	Name string `json:"name"`
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) account(c echo.Context) error {
	resp := accountResponse{
		Username:       h.session.Username().String(),
		UserID:         h.session.UserID().String(),
		Email:          h.session.AccountEmail(),
		BackgroundJobs: h.session.BackgroundJobsRunning(),
	}
	if fp, err := h.session.Keys().Fingerprint(c.Request().Context()); err == nil {
		resp.Fingerprint = fp.String()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handlers) sync(c echo.Context) error {
	if err := h.session.Sync(c.Request().Context()); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) mailboxes(c echo.Context) error {
	names, err := h.session.Account().Mailboxes(c.Request().Context())
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, names)
}

func (h *handlers) createMailbox(c echo.Context) error {
	var req createMailboxRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "mailbox name required")
	}
	if err := h.session.Account().CreateMailbox(c.Request().Context(), req.Name); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusCreated)
}

func (h *handlers) mails(c echo.Context) error {
	msgs, err := h.session.Account().Messages(c.Request().Context(), c.Param("name"))
	if err != nil {
		return mapDomainError(err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *handlers) deleteMail(c echo.Context) error {
	if err := h.session.Account().DeleteMessage(c.Request().Context(), c.Param("id")); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) send(c echo.Context) error {
	var mail domain.OutgoingMail
	if err := c.Bind(&mail); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid mail")
	}
	if err := h.session.Gateway().Send(c.Request().Context(), mail); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusAccepted)
}
