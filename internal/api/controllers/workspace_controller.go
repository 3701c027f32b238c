package controllers

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services"
	"github.com/mosaichq/backoffice/internal/services/workspace"
)

func RegisterWorkspaceRoutes(r *router.Router, svc *services.Services) {
	// Create workspace under a company, with its bound admin
	r.POST("/api/backoffice/companies/{companyID}/workspaces", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		companyID, err := pathParamUUID(ctx, "companyID")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		var body workspace.CreateWorkspaceRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		created, err := svc.Workspaces.Create(stdCtx, claims.UserID, companyID, &body)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to create workspace", err)
			return
		}

		writeOK(ctx, stdCtx, "Workspace created successfully", created)
	})

	// List workspaces of a company
	r.GET("/api/backoffice/companies/{companyID}/workspaces", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		companyID, err := pathParamUUID(ctx, "companyID")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		if !claims.IsSuperuser {
			tie, err := svc.Memberships.FindAnyActiveMembership(stdCtx, claims.UserID, companyID)
			if err != nil {
				writeError(ctx, stdCtx, "Failed to resolve membership", err)
				return
			}
			if tie == nil {
				writeError(ctx, stdCtx, "Company membership required", perrors.NewErrForbidden("Company membership required", nil))
				return
			}
		}

		page, limit := pageParams(ctx)
		workspaces, total, err := svc.Workspaces.ListByCompany(stdCtx, companyID, page, limit)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to list workspaces", err)
			return
		}

		writeOK(ctx, stdCtx, "Workspaces retrieved successfully", newPage(workspaces, total, page, limit))
	})

	// Get workspace
	r.GET("/api/backoffice/workspaces/{id}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		w, err := svc.Workspaces.GetByID(stdCtx, id)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to get workspace", err)
			return
		}

		if !claims.IsSuperuser {
			tie, err := svc.Memberships.FindAnyActiveMembership(stdCtx, claims.UserID, w.CompanyID)
			if err != nil {
				writeError(ctx, stdCtx, "Failed to resolve membership", err)
				return
			}
			if tie == nil {
				writeError(ctx, stdCtx, "Company membership required", perrors.NewErrForbidden("Company membership required", nil))
				return
			}
		}

		writeOK(ctx, stdCtx, "Workspace retrieved successfully", w)
	})

	// Update workspace
	r.PUT("/api/backoffice/workspaces/{id}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		var body workspace.UpdateWorkspaceRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		updated, err := svc.Workspaces.Update(stdCtx, claims.UserID, id, &body)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to update workspace", err)
			return
		}

		writeOK(ctx, stdCtx, "Workspace updated successfully", updated)
	})

	// Deactivate workspace
	r.DELETE("/api/backoffice/workspaces/{id}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		if err := svc.Workspaces.Deactivate(stdCtx, claims.UserID, id); err != nil {
			writeError(ctx, stdCtx, "Failed to deactivate workspace", err)
			return
		}

		writeOK(ctx, stdCtx, "Workspace deactivated successfully", nil)
	})
}
