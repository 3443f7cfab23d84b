// Package health exposes a small ambient HTTP endpoint for liveness and
// runtime statistics. spec.md names no such component; it is carried as
// part of the ambient stack (every daemon needs an operability surface) the
// same way the teacher repo exposes /health and /stats from
// internal/api/handlers/health.go, rebuilt here without the teacher's
// broader management-API surface (auth, filtering stats, DB-backed config).
package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jroosing/dockerdns-gateway/internal/gateway"
	"github.com/jroosing/dockerdns-gateway/internal/server"
)

// LivenessConfig carries the parameters handleHealth needs to repeat the
// startup upstream probe (src/dns.c's test_forward_dns) on every /healthz
// hit. Zero value disables the active probe; handleHealth then reports "ok"
// unconditionally.
type LivenessConfig struct {
	ForwardDNS    string
	ContainerName string
}

// StatusResponse is the /healthz payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// MemoryStats reports host memory usage.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// CPUStats reports host CPU usage.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// StatsResponse is the /statsz payload.
type StatsResponse struct {
	Uptime        string              `json:"uptime"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	StartTime     time.Time           `json:"start_time"`
	CPU           CPUStats            `json:"cpu"`
	Memory        MemoryStats         `json:"memory"`
	DNS           server.DNSStatsSnapshot `json:"dns"`
	QueueDropped  uint64              `json:"queue_dropped"`
	GatewayAddr   string              `json:"gateway_addr"`
}

// Server is the ambient health/stats HTTP server.
type Server struct {
	Stats       *server.DNSStats
	Gateway     *gateway.Resolver
	DroppedFunc func() uint64
	Liveness    LivenessConfig
	startTime   time.Time
	httpServer  *http.Server
}

// New creates a health Server. Call Run to start serving.
func New(stats *server.DNSStats, gw *gateway.Resolver, droppedFunc func() uint64) *Server {
	return &Server{Stats: stats, Gateway: gw, DroppedFunc: droppedFunc, startTime: time.Now()}
}

// Run starts the HTTP server bound to addr (host:port) and blocks until ctx
// is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", s.handleHealth)
	router.GET("/statsz", s.handleStats)

	s.httpServer = &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.Liveness.ForwardDNS == "" {
		c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
		return
	}

	if err := gateway.ProbeUpstream(s.Liveness.ForwardDNS, s.Liveness.ContainerName); err != nil {
		c.JSON(http.StatusServiceUnavailable, StatusResponse{Status: "degraded"})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	uptime := time.Since(s.startTime)

	memStats := MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
		cpuStats.IdlePercent = 100.0 - cpuPercent[0]
	}

	resp := StatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     s.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
	}
	if s.Stats != nil {
		resp.DNS = s.Stats.Snapshot()
	}
	if s.DroppedFunc != nil {
		resp.QueueDropped = s.DroppedFunc()
	}
	if s.Gateway != nil {
		if addr := s.Gateway.Addr(); addr != nil {
			resp.GatewayAddr = addr.String()
		}
	}

	c.JSON(http.StatusOK, resp)
}
