package controllers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/mosaichq/backoffice/internal/config"
	"github.com/mosaichq/backoffice/internal/notify"
	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services"
	"github.com/mosaichq/backoffice/internal/services/token"
)

type memberTargetRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func RegisterMemberRoutes(r *router.Router, svc *services.Services) {
	conf := config.ReadConfig()
	// List company members with consolidated roles
	r.GET("/api/backoffice/companies/{companyID}/members", func(ctx *fasthttp.RequestCtx) {
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

		if err := requireCompanyAdmin(ctx, svc, claims.UserID, claims.IsSuperuser, companyID); err != nil {
			writeError(ctx, stdCtx, "Company admin role required", err)
			return
		}

		page, limit := pageParams(ctx)
		members, total, err := svc.Memberships.CompanyMembers(stdCtx, companyID, page, limit)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to list members", err)
			return
		}

		writeOK(ctx, stdCtx, "Members retrieved successfully", newPage(members, total, page, limit))
	})

	// Effective role of a user across a company
	r.GET("/api/backoffice/companies/{companyID}/members/{userID}/role", func(ctx *fasthttp.RequestCtx) {
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

		userID, err := pathParamUUID(ctx, "userID")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		// Users can always inspect their own effective role
		if userID != claims.UserID {
			if err := requireCompanyAdmin(ctx, svc, claims.UserID, claims.IsSuperuser, companyID); err != nil {
				writeError(ctx, stdCtx, "Company admin role required", err)
				return
			}
		}

		report, err := svc.Memberships.ResolveEffectiveRole(stdCtx, userID, companyID)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to resolve role", err)
			return
		}

		writeOK(ctx, stdCtx, "Role resolved successfully", report)
	})

	// Promote a member to workspace admin
	r.POST("/api/backoffice/companies/{companyID}/workspaces/{workspaceID}/admins", func(ctx *fasthttp.RequestCtx) {
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

		workspaceID, err := pathParamUUID(ctx, "workspaceID")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		var body memberTargetRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		m, err := svc.Memberships.PromoteWorkspaceAdmin(stdCtx, claims.UserID, body.UserID, companyID, workspaceID)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to promote member", err)
			return
		}

		writeOK(ctx, stdCtx, "Member promoted successfully", m)
	})

	// Demote a workspace admin back to member
	r.DELETE("/api/backoffice/companies/{companyID}/workspaces/{workspaceID}/admins/{userID}", func(ctx *fasthttp.RequestCtx) {
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

		workspaceID, err := pathParamUUID(ctx, "workspaceID")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		userID, err := pathParamUUID(ctx, "userID")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		m, err := svc.Memberships.DemoteWorkspaceAdmin(stdCtx, claims.UserID, userID, companyID, workspaceID)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to demote member", err)
			return
		}

		writeOK(ctx, stdCtx, "Member demoted successfully", m)
	})

	// Remove a member from the company entirely
	r.DELETE("/api/backoffice/companies/{companyID}/members/{userID}", func(ctx *fasthttp.RequestCtx) {
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

		userID, err := pathParamUUID(ctx, "userID")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		if err := svc.Memberships.RemoveMember(stdCtx, claims.UserID, userID, companyID); err != nil {
			writeError(ctx, stdCtx, "Failed to remove member", err)
			return
		}

		writeOK(ctx, stdCtx, "Member removed successfully", nil)
	})

	// Resend the onboarding link of a member who has not completed
	// first access yet
	r.POST("/api/backoffice/companies/{companyID}/members/{userID}/resend-invite", func(ctx *fasthttp.RequestCtx) {
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

		userID, err := pathParamUUID(ctx, "userID")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		if err := requireCompanyAdmin(ctx, svc, claims.UserID, claims.IsSuperuser, companyID); err != nil {
			writeError(ctx, stdCtx, "Company admin role required", err)
			return
		}

		tie, err := svc.Memberships.FindAnyActiveMembership(stdCtx, userID, companyID)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to check company membership", perrors.NewErrInternalServerError("Failed to check company membership", err))
			return
		}
		if tie == nil {
			writeError(ctx, stdCtx, "User is not a member of this company", perrors.NewErrNotFound("User is not a member of this company", nil))
			return
		}

		u, err := svc.Users.GetByID(stdCtx, userID)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to load user", err)
			return
		}

		raw, err := svc.Tokens.GetOrRegenerate(stdCtx, userID, token.KindFirstAccess)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to regenerate invitation", err)
			return
		}
		if raw == "" {
			writeError(ctx, stdCtx, "Account has already completed onboarding", perrors.NewErrConflict("Account has already completed onboarding", nil))
			return
		}

		dispatchCtx := context.WithoutCancel(stdCtx)
		err = svc.Notifier.Send(dispatchCtx, notify.KindFirstAccess, u.Email, map[string]string{
			"name": u.Name,
			"link": fmt.Sprintf("%s/first-access?token=%s", conf.BASE_URL, raw),
		})
		if err != nil {
			slog.ErrorContext(dispatchCtx, "Failed to dispatch first-access notification", slog.Any("error", err), slog.String("user_id", u.ID.String()))
		}

		writeOK(ctx, stdCtx, "Invitation resent successfully", nil)
	})

	// Grant company admin
	r.POST("/api/backoffice/companies/{companyID}/admins", func(ctx *fasthttp.RequestCtx) {
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

		var body memberTargetRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		m, err := svc.Memberships.GrantCompanyAdmin(stdCtx, claims.UserID, body.UserID, companyID)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to grant company admin", err)
			return
		}

		writeOK(ctx, stdCtx, "Company admin granted successfully", m)
	})

	// Revoke a company admin membership row
	r.DELETE("/api/backoffice/companies/{companyID}/memberships/{membershipID}", func(ctx *fasthttp.RequestCtx) {
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

		membershipID, err := pathParamUUID(ctx, "membershipID")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		if err := svc.Memberships.RevokeCompanyAdmin(stdCtx, claims.UserID, companyID, membershipID); err != nil {
			writeError(ctx, stdCtx, "Failed to revoke company admin", err)
			return
		}

		writeOK(ctx, stdCtx, "Company admin revoked successfully", nil)
	})
}

// requireCompanyAdmin gates endpoints that expose or act on company-wide
// member data. Superusers pass unconditionally.
func requireCompanyAdmin(ctx *fasthttp.RequestCtx, svc *services.Services, userID uuid.UUID, isSuperuser bool, companyID uuid.UUID) error {
	if isSuperuser {
		return nil
	}

	stdCtx := requestContext(ctx)
	isAdmin, err := svc.Memberships.IsCompanyAdmin(stdCtx, userID, companyID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return perrors.NewErrForbidden("Company admin role required", nil)
	}
	return nil
}
