package controllers

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services"
	"github.com/mosaichq/backoffice/internal/services/user"
)

func RegisterUserRoutes(r *router.Router, svc *services.Services) {
	// List users (superuser only)
	r.GET("/api/backoffice/users", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		if !claims.IsSuperuser {
			writeError(ctx, stdCtx, "Superuser role required", perrors.NewErrForbidden("Superuser role required", nil))
			return
		}

		page, limit := pageParams(ctx)
		filter := user.ListFilter{
			Search: string(ctx.QueryArgs().Peek("search")),
			Page:   page,
			Limit:  limit,
		}

		users, total, err := svc.Users.List(stdCtx, filter)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to list users", err)
			return
		}

		writeOK(ctx, stdCtx, "Users retrieved successfully", newPage(users, total, page, limit))
	})

	// Get user (superuser only)
	r.GET("/api/backoffice/users/{id}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		if !claims.IsSuperuser {
			writeError(ctx, stdCtx, "Superuser role required", perrors.NewErrForbidden("Superuser role required", nil))
			return
		}

		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		u, err := svc.Users.GetByID(stdCtx, id)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to get user", err)
			return
		}

		writeOK(ctx, stdCtx, "User retrieved successfully", u)
	})

	// Update the logged-in user's own profile
	r.PUT("/api/backoffice/me", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		var body user.UpdateProfileRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		u, err := svc.Users.UpdateProfile(stdCtx, claims.UserID, &body)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to update profile", err)
			return
		}

		writeOK(ctx, stdCtx, "Profile updated successfully", u)
	})

	// Privileged account edit (superuser only)
	r.PUT("/api/backoffice/users/{id}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		if !claims.IsSuperuser {
			writeError(ctx, stdCtx, "Superuser role required", perrors.NewErrForbidden("Superuser role required", nil))
			return
		}

		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		var body user.AdminUpdateRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		u, err := svc.Users.AdminUpdate(stdCtx, claims.UserID, id, &body)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to update user", err)
			return
		}

		writeOK(ctx, stdCtx, "User updated successfully", u)
	})

	// Deactivate account (superuser only)
	r.DELETE("/api/backoffice/users/{id}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		if !claims.IsSuperuser {
			writeError(ctx, stdCtx, "Superuser role required", perrors.NewErrForbidden("Superuser role required", nil))
			return
		}

		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		if err := svc.Users.Deactivate(stdCtx, claims.UserID, id); err != nil {
			writeError(ctx, stdCtx, "Failed to deactivate user", err)
			return
		}

		writeOK(ctx, stdCtx, "User deactivated successfully", nil)
	})
}
