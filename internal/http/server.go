// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gatehouse/internal/http/handlers"
	"gatehouse/internal/http/middleware"
	"gatehouse/internal/modules/lock"
	"gatehouse/internal/modules/membership"
	"gatehouse/internal/modules/policy"
	"gatehouse/internal/modules/session"
)

type ServerDeps struct {
	Session    *session.Service
	Membership *membership.Service
	Policies   *policy.Store
	Locks      *lock.Coordinator

	JWTSecret     string
	RatePerSecond float64
	RateBurst     int
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

// Routes wires the device-facing lane endpoints and the operator-facing
// admin endpoints. Device routes carry no auth (lane controllers sit on a
// private network) but are rate limited; admin routes require an operator
// JWT.
func (s *Server) Routes() http.Handler {
	sessions := handlers.NewSessionHandler(s.deps.Session)
	locks := handlers.NewLockHandler(s.deps.Locks)
	policies := handlers.NewPolicyHandler(s.deps.Policies)
	memberships := handlers.NewMembershipHandler(s.deps.Membership)

	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	device := r.Group("/api", middleware.RateLimit(s.deps.RatePerSecond, s.deps.RateBurst))
	{
		device.POST("/sessions/entry", sessions.Enter)
		device.POST("/sessions/:id/confirm", sessions.ConfirmEntry)
		device.POST("/sessions/:id/presettle", sessions.PreSettle)
		device.POST("/sessions/:id/exit", sessions.Exit)
		device.POST("/sessions/:id/complete", sessions.Complete)
		device.GET("/sessions/:id", sessions.Get)
		device.POST("/memberships", memberships.Purchase)
	}

	admin := r.Group("/api/admin", middleware.OperatorAuth(s.deps.JWTSecret))
	{
		admin.POST("/sessions/:id/lock", locks.Acquire)
		admin.PUT("/sessions/:id/lock", locks.Extend)
		admin.DELETE("/sessions/:id/lock", locks.Release)

		admin.POST("/sessions/:id/presettle", sessions.PreSettle)
		admin.POST("/sessions/:id/exit", sessions.Exit)
		admin.POST("/sessions/:id/discounts", sessions.ApplyDiscount)
		admin.POST("/sessions/:id/resolve", sessions.Resolve)

		admin.GET("/policies", policies.List)
		admin.POST("/policies", policies.Create)
	}

	return r
}
