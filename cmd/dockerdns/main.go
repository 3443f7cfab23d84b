// Command dockerdns runs the docker-dns gateway forwarder: a small
// authoritative-and-forwarding DNS front-end that answers a synthesized
// gateway A record for one distinguished name and relays everything else
// in its configured suffix to an upstream resolver.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jroosing/dockerdns-gateway/internal/config"
	"github.com/jroosing/dockerdns-gateway/internal/forwarder"
	"github.com/jroosing/dockerdns-gateway/internal/gateway"
	"github.com/jroosing/dockerdns-gateway/internal/health"
	"github.com/jroosing/dockerdns-gateway/internal/logging"
	"github.com/jroosing/dockerdns-gateway/internal/namepolicy"
	"github.com/jroosing/dockerdns-gateway/internal/queryproc"
	"github.com/jroosing/dockerdns-gateway/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values, matching the original
// docker-dns C daemon's short/long option pairs.
type cliFlags struct {
	configPath    string
	logLevel      string
	gatewayName   string
	suffixDomain  string
	containerName string
	forwardDNS    string
	listenPort    int
	keepSuffix    bool
	maxHops       int
	numWorkers    int
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to optional YAML config file")
	flag.StringVar(&f.logLevel, "L", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.StringVar(&f.gatewayName, "G", "", "Gateway host name")
	flag.StringVar(&f.gatewayName, "gateway", "", "Gateway host name")
	flag.StringVar(&f.suffixDomain, "S", "", "Domain suffix this gateway is authoritative for")
	flag.StringVar(&f.suffixDomain, "suffix", "", "Domain suffix this gateway is authoritative for")
	flag.StringVar(&f.containerName, "C", "", "Upstream-resolvable name used for the startup liveness probe")
	flag.StringVar(&f.containerName, "container", "", "Upstream-resolvable name used for the startup liveness probe")
	flag.StringVar(&f.forwardDNS, "D", "", "Upstream DNS server address")
	flag.StringVar(&f.forwardDNS, "dns-server", "", "Upstream DNS server address")
	flag.IntVar(&f.listenPort, "P", 0, "UDP port to listen on")
	flag.IntVar(&f.listenPort, "port", 0, "UDP port to listen on")
	flag.BoolVar(&f.keepSuffix, "K", false, "Keep the suffix when forwarding instead of stripping it")
	flag.BoolVar(&f.keepSuffix, "keep-suffix", false, "Keep the suffix when forwarding instead of stripping it")
	flag.IntVar(&f.maxHops, "M", 0, "Maximum forwarding hop count before answering SERVFAIL")
	flag.IntVar(&f.maxHops, "max-hops", 0, "Maximum forwarding hop count before answering SERVFAIL")
	flag.IntVar(&f.numWorkers, "W", 0, "Number of worker goroutines draining the request queue")
	flag.IntVar(&f.numWorkers, "workers", 0, "Number of worker goroutines draining the request queue")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.gatewayName != "" {
		cfg.GatewayName = f.gatewayName
	}
	if f.suffixDomain != "" {
		cfg.SuffixDomain = f.suffixDomain
	}
	if f.containerName != "" {
		cfg.ContainerName = f.containerName
	}
	if f.forwardDNS != "" {
		cfg.ForwardDNS = f.forwardDNS
	}
	if f.listenPort != 0 {
		cfg.ListenPort = f.listenPort
	}
	if f.keepSuffix {
		cfg.KeepSuffix = true
	}
	if f.maxHops != 0 {
		cfg.MaxHops = f.maxHops
	}
	if f.numWorkers != 0 {
		cfg.NumWorkers = f.numWorkers
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})

	logger.Info("starting docker-dns gateway",
		"listen_port", cfg.ListenPort,
		"forward_dns", cfg.ForwardDNS,
		"gateway_name", cfg.GatewayName,
		"suffix_domain", cfg.SuffixDomain,
		"keep_suffix", cfg.KeepSuffix,
		"max_hops", cfg.MaxHops,
		"num_workers", cfg.NumWorkers,
	)

	if err := gateway.ProbeUpstream(cfg.ForwardDNS, cfg.ContainerName); err != nil {
		logger.Warn("forward DNS server may not be available", "forward_dns", cfg.ForwardDNS, "error", err)
	} else {
		logger.Debug("forward DNS server is reachable", "forward_dns", cfg.ForwardDNS)
	}

	gw := gateway.New()
	if err := gw.Refresh(); err != nil {
		logger.Warn("failed to resolve gateway IP at startup", "error", err)
	} else {
		logger.Info("gateway address resolved", "name", cfg.GatewayName+cfg.SuffixDomain, "addr", gw.Addr())
	}

	stats := server.NewDNSStats()
	processor := &queryproc.Processor{
		Policy:     namepolicy.New(cfg.SuffixDomain, cfg.GatewayName),
		Gateway:    gw,
		Forwarder:  forwarder.New(cfg.ForwardDNS),
		MaxHops:    cfg.MaxHops,
		KeepSuffix: cfg.KeepSuffix,
		Stats:      stats,
		Logger:     logger,
	}

	udpServer := &server.UDPServer{
		Logger:     logger,
		Handler:    processor,
		NumWorkers: cfg.NumWorkers,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Health.Enabled {
		healthSrv := health.New(stats, gw, udpServer.Dropped)
		healthSrv.Liveness = health.LivenessConfig{ForwardDNS: cfg.ForwardDNS, ContainerName: cfg.ContainerName}
		healthAddr := net.JoinHostPort(cfg.Health.Host, strconv.Itoa(cfg.Health.Port))
		go func() {
			logger.Info("health endpoint starting", "addr", healthAddr)
			if err := healthSrv.Run(ctx, healthAddr); err != nil {
				logger.Error("health endpoint stopped with error", "error", err)
			}
		}()
	}

	listenAddr := net.JoinHostPort("", strconv.Itoa(cfg.ListenPort))
	logger.Info("listening for DNS queries", "addr", listenAddr)

	if err := udpServer.Run(ctx, listenAddr); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}

	logger.Info("shut down gracefully")
	return nil
}
