package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kgate/internal/auth"
	"github.com/khanghh/kgate/internal/users"
	"github.com/khanghh/kgate/model"
	"github.com/khanghh/kgate/params"
	"github.com/valyala/fasthttp"
)

type Coordinator interface {
	Login(ctx context.Context, req auth.Request, input auth.LoginInput) (*auth.Result, error)
	DestroyToken(ctx context.Context, req auth.Request, tokenValue string) (bool, *auth.CookieDirective, error)
}

type PortalFinder interface {
	GetPortal(ctx context.Context, portalID string) (*model.Portal, error)
}

type AuthHandler struct {
	coordinator  Coordinator
	portals      PortalFinder
	cookieSecure bool
}

// parseCredentials reads username:password from the kgate authorization
// header, falling back to HTTP basic auth.
func parseCredentials(ctx *fiber.Ctx) (string, string, bool) {
	encoded := ctx.Get(params.HeaderAuthorization)
	if encoded == "" {
		basic := ctx.Get(params.HeaderBasicAuthorization)
		if len(basic) < 6 || !strings.EqualFold(basic[:6], "basic ") {
			return "", "", false
		}
		encoded = basic[6:]
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", false
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	return username, password, ok
}

func (h *AuthHandler) lookupPortal(ctx *fiber.Ctx) (*model.Portal, error) {
	portalID := ctx.Get(params.HeaderPortal)
	if portalID == "" {
		return nil, nil
	}
	portal, err := h.portals.GetPortal(ctx.Context(), portalID)
	if errors.Is(err, users.ErrPortalNotFound) {
		return nil, fiber.ErrNotFound
	}
	return portal, err
}

func (h *AuthHandler) writeCookie(ctx *fiber.Ctx, directive *auth.CookieDirective) {
	if directive == nil {
		return
	}
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey(directive.Name)
	cookie.SetValue(directive.Value)
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	cookie.SetSecure(h.cookieSecure)
	cookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	if directive.IsClear() {
		cookie.SetExpire(fasthttp.CookieExpireDelete)
	} else {
		cookie.SetExpire(directive.Expires)
	}
	ctx.Response().Header.SetCookie(cookie)
}

func sendLoginError(ctx *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrTooManyAttempts):
		return ctx.Status(fiber.StatusForbidden).JSON(NewErrorResponse(fiber.StatusForbidden, "Too many failed login attempts"))
	case errors.Is(err, auth.ErrMethodNotAllowed):
		return ctx.Status(fiber.StatusBadRequest).JSON(NewErrorResponse(fiber.StatusBadRequest, "Authentication method not allowed"))
	case errors.Is(err, auth.ErrUnavailable):
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(NewErrorResponse(fiber.StatusServiceUnavailable, "Application is in maintenance mode"))
	default:
		return err
	}
}

func sendUnauthorized(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse(fiber.StatusUnauthorized, "Authentication failed"))
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	username, password, ok := parseCredentials(ctx)
	if !ok {
		return sendUnauthorized(ctx)
	}
	portal, err := h.lookupPortal(ctx)
	if err != nil {
		return err
	}

	result, err := h.coordinator.Login(ctx.Context(), newFiberRequest(ctx), auth.LoginInput{
		Username: username,
		Password: password,
		Method:   ctx.Get(params.HeaderAuthorizationMethod),
		Portal:   portal,
	})
	if err != nil {
		return sendLoginError(ctx, err)
	}

	switch result.Status {
	case auth.StatusSecondStepRequired:
		return ctx.JSON(NewDataResponse(SecondStepResponse{
			Status:    result.Status.String(),
			View:      result.View,
			LoginData: result.LoginData,
		}))
	case auth.StatusAuthenticated:
		h.writeCookie(ctx, result.SecretCookie)
		identity := result.Identity
		return ctx.JSON(NewDataResponse(LoginResponse{
			User: UserInfoResponse{
				UserID:   strconv.FormatUint(uint64(identity.User.ID), 10),
				Username: identity.User.Username,
				FullName: identity.User.FullName,
				Email:    identity.User.Email,
				IsAdmin:  identity.User.IsAdmin,
				PortalID: identity.PortalID,
				Teams:    teamNames(identity.User),
			},
			Token:           identity.Token,
			AuthTokenID:     identity.AuthTokenID,
			AuthLogRecordID: identity.AuthLogRecordID,
		}))
	default:
		return sendUnauthorized(ctx)
	}
}

// PostLogout authenticates the presented token and deactivates it.
func (h *AuthHandler) PostLogout(ctx *fiber.Ctx) error {
	_, token, ok := parseCredentials(ctx)
	if !ok {
		return sendUnauthorized(ctx)
	}
	portal, err := h.lookupPortal(ctx)
	if err != nil {
		return err
	}

	req := newFiberRequest(ctx)
	req.overrides = map[string]string{
		params.HeaderAuthorizationByToken: "true",
		params.HeaderAuthorization:        "",
		params.HeaderAuthorizationMethod:  "",
	}
	result, err := h.coordinator.Login(ctx.Context(), req, auth.LoginInput{
		Username: params.LogoutUsername,
		Password: token,
		Portal:   portal,
	})
	if err != nil {
		return sendLoginError(ctx, err)
	}
	if result.Status != auth.StatusAuthenticated {
		return sendUnauthorized(ctx)
	}

	found, directive, err := h.coordinator.DestroyToken(ctx.Context(), req, token)
	if err != nil {
		return err
	}
	if !found {
		slog.Warn("Token vanished during logout", "authTokenId", result.Identity.AuthTokenID)
	}
	h.writeCookie(ctx, directive)
	return ctx.JSON(NewDataResponse(fiber.Map{"loggedOut": found}))
}

func NewAuthHandler(coordinator Coordinator, portals PortalFinder, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		coordinator:  coordinator,
		portals:      portals,
		cookieSecure: cookieSecure,
	}
}
