package handler

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tailor-backend/internal/policy"
)

// UserLookup is the slice of the Firebase auth client used for profile data.
type UserLookup interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

type MeHandler struct {
	users UserLookup
}

// NewMeHandler accepts a nil lookup; the profile fields are then omitted.
func NewMeHandler(users UserLookup) *MeHandler {
	return &MeHandler{users: users}
}

type MeResponse struct {
	UID         string  `json:"uid"`
	Role        string  `json:"role"`
	DisplayName string  `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

func (h *MeHandler) Get(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	resp := MeResponse{UID: actor.ID, Role: string(actor.Role)}
	if h.users != nil && actor.Role != policy.RoleSystem {
		// service-token callers have no Firebase record
		if user, err := h.users.GetUser(c.Request().Context(), actor.ID); err == nil {
			resp.DisplayName = user.DisplayName
			resp.PhotoURL = strPtrOrNil(user.PhotoURL)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
