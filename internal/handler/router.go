package handler

import (
	xhttp "MarketPulse/pkg/http"

	"github.com/labstack/echo/v4"
)

// Router composes route registrars into the single Handler the server takes.
type Router struct {
	handlers []xhttp.Handler
}

func NewRouter(handlers ...xhttp.Handler) *Router {
	return &Router{handlers: handlers}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	for _, h := range r.handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}
