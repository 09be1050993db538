package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/r3e-network/culture-arena/domain/telemetry"
)

// telemetryServer exposes the Operator Telemetry Submitter's control
// surface: health (with host cpu/mem alongside reported energy data),
// last-cycle status, and an out-of-band run trigger.
type telemetryServer struct {
	submitter *telemetry.Submitter
	log       *logrus.Entry
}

func (s *telemetryServer) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.handleHealthz)
	r.GET("/status", s.handleStatus)
	r.POST("/run-now", s.handleRunNow)
	return r
}

func (s *telemetryServer) handleHealthz(c *gin.Context) {
	body := gin.H{"status": "ok"}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		body["cpuPercent"] = percents[0]
	} else if err != nil {
		s.log.WithError(err).Debug("telemetry: cpu sample unavailable")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		body["memUsedPercent"] = vm.UsedPercent
	} else {
		s.log.WithError(err).Debug("telemetry: mem sample unavailable")
	}

	c.JSON(http.StatusOK, body)
}

func (s *telemetryServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.submitter.Status())
}

// handleRunNow sets the immediateRun flag consumed at the next poll-loop
// iteration boundary; it does not run the cycle synchronously.
func (s *telemetryServer) handleRunNow(c *gin.Context) {
	s.submitter.TriggerNow()
	c.Status(http.StatusAccepted)
}
