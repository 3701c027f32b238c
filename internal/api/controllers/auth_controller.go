package controllers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/mosaichq/backoffice/internal/api/authenticator"
	"github.com/mosaichq/backoffice/internal/config"
	"github.com/mosaichq/backoffice/internal/notify"
	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services"
	"github.com/mosaichq/backoffice/internal/services/token"
	"github.com/mosaichq/backoffice/internal/services/user"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string     `json:"access_token"`
	User        *user.User `json:"user"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func RegisterAuthRoutes(r *router.Router, svc *services.Services, auth *authenticator.Authenticator) {
	conf := config.ReadConfig()

	// Login
	r.POST("/api/backoffice/auth/login", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		var body loginRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		u, err := svc.Users.Authenticate(stdCtx, body.Email, body.Password)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid credentials", err)
			return
		}

		accessToken, err := auth.GenerateToken(u)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to generate access token", perrors.NewErrInternalServerError("Failed to generate access token", err))
			return
		}

		writeOK(ctx, stdCtx, "Logged in successfully", &loginResponse{AccessToken: accessToken, User: u})
	})

	// Current user
	r.GET("/api/backoffice/auth/me", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		u, err := svc.Users.GetByID(stdCtx, claims.UserID)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to get user", err)
			return
		}

		writeOK(ctx, stdCtx, "User retrieved successfully", u)
	})

	// Change password for the logged-in user
	r.POST("/api/backoffice/auth/change-password", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		var body user.ChangePasswordRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		if err := svc.Users.ChangePassword(stdCtx, claims.UserID, &body); err != nil {
			writeError(ctx, stdCtx, "Failed to change password", err)
			return
		}

		writeOK(ctx, stdCtx, "Password changed successfully", nil)
	})

	// Request a password reset link. Responds OK regardless of whether
	// the email matches an account.
	r.POST("/api/backoffice/auth/forgot-password", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		var body forgotPasswordRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		if body.Email == "" {
			writeError(ctx, stdCtx, "Email is required", perrors.NewErrInvalidRequest("Email is required", nil))
			return
		}

		dispatchPasswordReset(stdCtx, svc, conf, body.Email)

		writeOK(ctx, stdCtx, "If the email exists, a reset link has been sent", nil)
	})

	// Complete a password reset
	r.POST("/api/backoffice/auth/reset-password", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		var body token.ConsumeRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		u, err := svc.Tokens.Consume(stdCtx, token.KindPasswordReset, &body)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to reset password", err)
			return
		}

		writeOK(ctx, stdCtx, "Password reset successfully", u)
	})

	// Complete onboarding for a provisioned account
	r.POST("/api/backoffice/auth/first-access", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		var body token.ConsumeRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		u, err := svc.Tokens.Consume(stdCtx, token.KindFirstAccess, &body)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to complete first access", err)
			return
		}

		accessToken, err := auth.GenerateToken(u)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to generate access token", perrors.NewErrInternalServerError("Failed to generate access token", err))
			return
		}

		writeOK(ctx, stdCtx, "Account activated successfully", &loginResponse{AccessToken: accessToken, User: u})
	})
}

// dispatchPasswordReset issues a reset token and hands the notification
// to the out-of-band sender. Unknown or inactive emails are dropped
// silently so the endpoint does not leak which accounts exist.
func dispatchPasswordReset(ctx context.Context, svc *services.Services, conf *config.Config, email string) {
	ctx = context.WithoutCancel(ctx)

	u, err := svc.Users.GetByEmail(ctx, email)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to look up account for password reset", slog.Any("error", err))
		return
	}
	if u == nil || !u.IsActive {
		return
	}

	raw, err := svc.Tokens.Issue(ctx, u.ID, token.KindPasswordReset)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to issue password reset token", slog.Any("error", err), slog.String("user_id", u.ID.String()))
		return
	}

	err = svc.Notifier.Send(ctx, notify.KindPasswordReset, u.Email, map[string]string{
		"name": u.Name,
		"link": fmt.Sprintf("%s/reset-password?token=%s", conf.BASE_URL, raw),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dispatch password reset notification", slog.Any("error", err), slog.String("user_id", u.ID.String()))
	}
}
