package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	json "github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/mosaichq/backoffice/internal/api/authenticator"
	"github.com/mosaichq/backoffice/internal/api/response"
	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/valyala/fasthttp"
)

// requestContext returns a baseline context for handlers. fasthttp does not provide
// a standard context, so we start from Background for downstream calls.
func requestContext(_ *fasthttp.RequestCtx) context.Context {
	return context.Background()
}

// currentUser returns the claims the auth middleware stored on the
// request. Handlers behind the middleware can rely on it being present.
func currentUser(ctx *fasthttp.RequestCtx) (*authenticator.UserClaims, error) {
	claims, ok := ctx.UserValue("userClaims").(*authenticator.UserClaims)
	if !ok || claims == nil {
		return nil, perrors.NewErrUnauthorized("Not authenticated", nil)
	}

	return claims, nil
}

func parseBody(ctx *fasthttp.RequestCtx, target any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("request body is empty")
	}

	return json.Unmarshal(body, target)
}

func writeError(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, err error) {
	response.NewResponse[any](stdCtx, message, nil).WithError(err).Write(ctx)
}

func writeOK(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, data any) {
	response.NewResponse(stdCtx, message, data).Write(ctx)
}

func pathParam(ctx *fasthttp.RequestCtx, key string) (string, error) {
	val := ctx.UserValue(key)
	if val == nil {
		return "", fmt.Errorf("%s is required", key)
	}

	return fmt.Sprint(val), nil
}

func pathParamUUID(ctx *fasthttp.RequestCtx, key string) (uuid.UUID, error) {
	val, err := pathParam(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}

	return uuid.Parse(val)
}

func newPage[T any](items []T, total, page, limit int) *response.Page[T] {
	return response.NewPage(items, total, page, limit)
}

// pageParams reads page/limit query params, falling back to the first
// page of twenty rows.
func pageParams(ctx *fasthttp.RequestCtx) (page, limit int) {
	page, limit = 1, 20

	if raw := ctx.QueryArgs().Peek("page"); len(raw) > 0 {
		if v, err := strconv.Atoi(string(raw)); err == nil && v > 0 {
			page = v
		}
	}
	if raw := ctx.QueryArgs().Peek("limit"); len(raw) > 0 {
		if v, err := strconv.Atoi(string(raw)); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	return page, limit
}
