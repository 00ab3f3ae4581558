package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vcscompare/internal/repository"
	"github.com/openmined/vcscompare/internal/server/auth"
	"github.com/openmined/vcscompare/internal/server/handlers/api"
	"github.com/openmined/vcscompare/internal/server/handlers/repo"
	"github.com/openmined/vcscompare/internal/server/middlewares"
	"github.com/openmined/vcscompare/internal/version"
)

func SetupRoutes(config *Config, store *repository.Repository, authSvc *auth.AuthService) (http.Handler, error) {
	r := gin.New()

	repoH := repo.New(store, config.APILevel)

	r.Use(middlewares.Logger(slog.Default()))
	r.Use(gin.Recovery())
	r.Use(middlewares.GZIP())
	r.Use(middlewares.CORS())

	if config.HTTP.RateLimit != "" {
		limiter, err := middlewares.RateLimiter(config.HTTP.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		r.Use(limiter)
	}

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	v1 := r.Group("/api/v1")
	v1.Use(middlewares.TokenAuth(authSvc))
	{
		v1.GET("/info", repoH.Info)
		v1.GET("/node", repoH.Node)
		v1.GET("/tree", repoH.Tree)
		v1.GET("/file", repoH.File)
		v1.GET("/diff", repoH.Diff)
		v1.GET("/copysource", repoH.CopySource)
		v1.GET("/log", repoH.Log)
		v1.POST("/commit", repoH.Commit)
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, api.APIError{
			Code:    api.CodeNotFound,
			Message: "not found",
		})
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
