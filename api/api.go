package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sellolabs/sello"
	"github.com/sellolabs/sello/api/middleware"
	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/internal/apierror"
)

type Api struct {
	sello  *sello.Sello
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/issuances", a.CreateIssuance)
	router.GET("/issuances/:id", a.GetIssuance)
	router.GET("/issuances", a.GetAllIssuances)

	router.POST("/issuances/:id/resend", a.ResendIssuance)
	router.POST("/issuances/resend-pending", a.ResendPending)
	router.POST("/issuances/:id/verify", a.VerifyIssuance)
	router.POST("/issuances/verify-unconfirmed", a.VerifyUnconfirmed)

	router.GET("/queue/stats", a.GetQueueStats)
	return a.router
}

func NewAPI(s *sello.Sello) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.EnableTelemetry {
		r.Use(otelgin.Middleware(conf.ProjectName))
	}
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	// Certificate verification is the public face of the service; it is
	// registered before the auth middleware so holders can check their
	// certificates without a key.
	a := &Api{sello: s, router: r}
	r.GET("/verify/:uuid", a.VerifyCertificate)

	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	return a
}

// respondError maps service errors onto HTTP responses, preserving the
// structured code carried by APIError.
func respondError(c *gin.Context, err error) {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apierror.MapErrorToHTTPStatus(err), apiErr)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
