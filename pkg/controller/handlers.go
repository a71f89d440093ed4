package controller

import (
	"net/http"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/observability"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the controller's control-plane HTTP surface.
func NewRouter(ctrl *Controller, metrics *observability.ControllerMetrics, registry *prometheus.Registry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestTimer(metrics.RequestDuration))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "chaos-controller"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.GET("/targets", listTargetsHandler(ctrl))
	router.POST("/experiment", runExperimentHandler(ctrl))
	router.GET("/experiments", experimentHistoryHandler(ctrl))
	router.POST("/recover/:service", recoverServiceHandler(ctrl))

	return router
}

func listTargetsHandler(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		targets, err := ctrl.ListTargets(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"targets": targets})
	}
}

func runExperimentHandler(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var chaos types.ChaosConfig
		if err := c.ShouldBindJSON(&chaos); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "malformed experiment request: " + err.Error()})
			return
		}

		record, err := ctrl.Apply(c.Request.Context(), chaos)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func experimentHistoryHandler(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"experiments": ctrl.History()})
	}
}

func recoverServiceHandler(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		service := c.Param("service")
		outcome, err := ctrl.Recover(c.Request.Context(), service)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": string(outcome), "service": service})
	}
}

// writeError folds the error taxonomy onto HTTP statuses: unknown names are
// client errors, ambiguous names are configuration errors, the rest is 500.
func writeError(c *gin.Context, err error) {
	message, errorType := cerrors.GetRootCauseAndErrorCode(err)
	switch {
	case cerrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"detail": message})
	case cerrors.IsConfiguration(err):
		c.JSON(http.StatusBadRequest, gin.H{"detail": message})
	default:
		log.Errorf("[Controller]: Request failed with %v, err: %v", errorType, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": message})
	}
}
