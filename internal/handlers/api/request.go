package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// fiberRequest exposes a fiber request to the auth coordinator. Headers in
// overrides take precedence over the ones sent by the client.
type fiberRequest struct {
	ctx       *fiber.Ctx
	at        time.Time
	overrides map[string]string
}

func (r *fiberRequest) Header(name string) string {
	if val, ok := r.overrides[name]; ok {
		return val
	}
	return r.ctx.Get(name)
}

func (r *fiberRequest) Cookie(name string) string {
	return r.ctx.Cookies(name)
}

func (r *fiberRequest) RemoteAddr() string {
	return r.ctx.IP()
}

func (r *fiberRequest) RequestTime() time.Time {
	return r.at
}

func (r *fiberRequest) Method() string {
	return r.ctx.Method()
}

func (r *fiberRequest) URL() string {
	return r.ctx.Protocol() + "://" + r.ctx.Hostname() + r.ctx.Path()
}

func newFiberRequest(ctx *fiber.Ctx) *fiberRequest {
	return &fiberRequest{ctx: ctx, at: time.Now()}
}
