package runner

import (
	"errors"
	"net/http"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/observability"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the experiment runner's control-plane HTTP surface.
func NewRouter(service *Service, metrics *observability.RunnerMetrics, registry *prometheus.Registry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestTimer(metrics.RequestDuration))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "experiment-runner"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.GET("/experiments", listExperimentsHandler(service))
	router.GET("/experiments/:name", getExperimentHandler(service))
	router.POST("/run/:name", runByNameHandler(service))
	router.POST("/run", runInlineHandler(service))
	router.GET("/history", historyHandler(service))
	router.GET("/history/:name", historyByNameHandler(service))
	router.GET("/events", eventsHandler(service))

	return router
}

func listExperimentsHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := service.List()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"experiments": names})
	}
}

func getExperimentHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		experiment, err := service.Get(c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, experiment)
	}
}

func runByNameHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := service.RunByName(c.Request.Context(), c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func runInlineHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var experiment types.Experiment
		if err := c.ShouldBindJSON(&experiment); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "malformed experiment: " + err.Error()})
			return
		}

		result, err := service.Run(c.Request.Context(), experiment)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func historyHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"history": service.History()})
	}
}

func historyByNameHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"history": service.HistoryByName(c.Param("name"))})
	}
}

func eventsHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"events": service.Events()})
	}
}

func writeError(c *gin.Context, err error) {
	var busy ErrTargetBusy
	if errors.As(err, &busy) {
		c.JSON(http.StatusConflict, gin.H{"detail": busy.Error()})
		return
	}

	message, errorType := cerrors.GetRootCauseAndErrorCode(err)
	switch {
	case cerrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"detail": message})
	case cerrors.IsConfiguration(err):
		c.JSON(http.StatusBadRequest, gin.H{"detail": message})
	default:
		log.Errorf("[Runner]: Request failed with %v, err: %v", errorType, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": message})
	}
}
