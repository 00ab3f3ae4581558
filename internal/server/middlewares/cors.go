package middlewares

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows read access to the repository api from any origin
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept-Encoding"},
		ExposeHeaders:    []string{"X-Node-Rev", "X-Node-Checksum"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
