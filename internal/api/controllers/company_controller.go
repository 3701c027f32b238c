package controllers

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services"
	"github.com/mosaichq/backoffice/internal/services/company"
)

func RegisterCompanyRoutes(r *router.Router, svc *services.Services) {
	// Create company with its initial admin
	r.POST("/api/backoffice/companies", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		var body company.CreateCompanyRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		created, err := svc.Companies.Create(stdCtx, claims.UserID, &body)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to create company", err)
			return
		}

		writeOK(ctx, stdCtx, "Company created successfully", created)
	})

	// List companies (superuser only)
	r.GET("/api/backoffice/companies", func(ctx *fasthttp.RequestCtx) {
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
		companies, total, err := svc.Companies.List(stdCtx, page, limit)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to list companies", err)
			return
		}

		writeOK(ctx, stdCtx, "Companies retrieved successfully", newPage(companies, total, page, limit))
	})

	// Get company
	r.GET("/api/backoffice/companies/{id}", func(ctx *fasthttp.RequestCtx) {
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

		if !claims.IsSuperuser {
			tie, err := svc.Memberships.FindAnyActiveMembership(stdCtx, claims.UserID, id)
			if err != nil {
				writeError(ctx, stdCtx, "Failed to resolve membership", err)
				return
			}
			if tie == nil {
				writeError(ctx, stdCtx, "Company membership required", perrors.NewErrForbidden("Company membership required", nil))
				return
			}
		}

		c, err := svc.Companies.GetByID(stdCtx, id)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to get company", err)
			return
		}

		writeOK(ctx, stdCtx, "Company retrieved successfully", c)
	})

	// Update company
	r.PUT("/api/backoffice/companies/{id}", func(ctx *fasthttp.RequestCtx) {
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

		var body company.UpdateCompanyRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		updated, err := svc.Companies.Update(stdCtx, claims.UserID, id, &body)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to update company", err)
			return
		}

		writeOK(ctx, stdCtx, "Company updated successfully", updated)
	})

	// Deactivate company
	r.DELETE("/api/backoffice/companies/{id}", func(ctx *fasthttp.RequestCtx) {
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

		if err := svc.Companies.Deactivate(stdCtx, claims.UserID, id); err != nil {
			writeError(ctx, stdCtx, "Failed to deactivate company", err)
			return
		}

		writeOK(ctx, stdCtx, "Company deactivated successfully", nil)
	})

	// Companies the logged-in user belongs to, with consolidated role
	r.GET("/api/backoffice/me/companies", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		claims, err := currentUser(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Not authenticated", err)
			return
		}

		summaries, err := svc.Memberships.MyCompanies(stdCtx, claims.UserID)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to list companies", err)
			return
		}

		writeOK(ctx, stdCtx, "Companies retrieved successfully", summaries)
	})
}
