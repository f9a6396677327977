package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/oarkflow/accessguard"
	"github.com/oarkflow/accessguard/logger"
)

// Server exposes the rule engine over HTTP.
type Server struct {
	engine *accessguard.Engine
	users  UserDirectory
	secret string
	log    logger.Logger
	router *gin.Engine
}

// ServerOption customises a Server.
type ServerOption func(*Server)

func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer wires the routes. The JWT secret signs login tokens.
func NewServer(engine *accessguard.Engine, users UserDirectory, secret string, opts ...ServerOption) *Server {
	s := &Server{
		engine: engine,
		users:  users,
		secret: secret,
		log:    logger.NewPhusluLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the underlying gin engine, mostly for tests and for
// embedding into a larger mux.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) Run(addr string) error { return s.router.Run(addr) }

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/api/v1/auth/login", s.LoginHandler())

	api := r.Group("/api/v1", s.JWT(), s.DebugRedirect())
	{
		api.GET("/access/:model/:op", s.CheckAccess())
		api.GET("/access/:model/:op/domain", s.AccessDomain())
		api.POST("/views/:model/:type/rewrite", s.RewriteView())
		api.POST("/views/:model/discover", s.DiscoverNodes())
		api.POST("/menus/visible", s.VisibleMenus())
		api.POST("/actions/:model/bindings", s.FilterBindings())
		api.POST("/actions/:model/views", s.FilterActionViews())

		admin := api.Group("/admin")
		{
			admin.GET("/rule-sets", s.ListRuleSets())
			admin.POST("/rule-sets", s.CreateRuleSet())
			admin.PUT("/rule-sets/:id", s.UpdateRuleSet())
			admin.DELETE("/rule-sets/:id", s.DeleteRuleSet())
		}
	}
	return r
}
