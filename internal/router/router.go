package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/niraliveastro/astro-call-service/api"
	"github.com/niraliveastro/astro-call-service/internal/handler"
	"github.com/niraliveastro/astro-call-service/internal/middleware"
	"github.com/niraliveastro/astro-call-service/pkg/constants"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Calls    *handler.CallHandler
	Status   *handler.StatusHandler
	Events   *handler.EventsHandler
	WSEvents *handler.WSEventsHandler
	Admin    *handler.AdminHandler
	Health   *handler.HealthHandler
}

// New builds the HTTP router.
func New(h Handlers, log *zap.Logger) http.Handler {
	r := gin.New()
	r.Use(middleware.RecoveryLogger(log), middleware.RequestLogger(log), middleware.CORS())

	r.GET(constants.PathHealth, h.Health.Health)
	r.GET(constants.PathReady, h.Health.Ready)
	r.GET(constants.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, constants.PathSwagger+"/") })
	r.GET(constants.PathSwagger+"/*any", func(c *gin.Context) {
		switch strings.TrimPrefix(c.Param("any"), "/") {
		case "openapi.json":
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		case "":
			c.Request.URL.Path = constants.PathSwagger + "/index.html"
			c.Request.RequestURI = constants.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(constants.PathSwagger+"/openapi.json"))(c)
	})

	r.POST(constants.PathCalls, h.Calls.Post)
	r.GET(constants.PathCalls, h.Calls.List)
	r.POST(constants.PathAstrologerStatus, h.Status.Set)
	r.GET(constants.PathAstrologerStatus, h.Status.Get)

	// Push streams: SSE and WebSocket carry identical frames.
	r.GET(constants.PathEvents, h.Events.Stream)
	r.GET(constants.PathWSEvents, h.WSEvents.ServeWS)

	r.GET(constants.PathAdminCalls, h.Admin.ListCalls)
	r.POST(constants.PathAdminFixPending, h.Admin.FixPendingCalls)

	return r
}
