package httpserver

import (
	"net/http"

	"github.com/iago/report-relay/internal/http/handlers"
	"github.com/iago/report-relay/internal/http/middleware"
	"github.com/sirupsen/logrus"
)

type RouterDependencies struct {
	API           *handlers.API
	Logger        *logrus.Logger
	RateLimiter   *middleware.RateLimiter
	ChannelSecret string
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", deps.API.Status)
	mux.HandleFunc("GET /healthz", deps.API.Health)

	submit := http.Handler(http.HandlerFunc(deps.API.SubmitReport))
	if deps.RateLimiter != nil {
		submit = deps.RateLimiter.Middleware(submit)
	}
	mux.Handle("POST /api/report", submit)

	mux.Handle("POST /webhook", middleware.Signature(deps.ChannelSecret, deps.Logger)(http.HandlerFunc(deps.API.Webhook)))

	if deps.API.StaticEnabled() {
		mux.HandleFunc("GET /liff", deps.API.LIFF)
		mux.Handle("GET /", deps.API.Static())
	}

	handler := http.Handler(mux)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
