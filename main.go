package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global debug flag
var DebugMode bool

// Global start time for process uptime tracking
var StartTime time.Time

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	synthetic := flag.Bool("synthetic", false, "Force the synthetic board regardless of config")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	DebugMode = *debug
	StartTime = time.Now()

	log.Printf("NeuroView EEG server v%s starting", Version)

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *synthetic {
		config.Board.Mode = ModeSynthetic
	}

	StartVersionChecker(config.Server.VersionCheckEnabled, config.Server.VersionCheckInterval)

	var metrics *Metrics
	if config.Prometheus.Enabled {
		metrics = NewMetrics()
	}

	// Ring buffer sized from the configured rate; the source pushes into
	// it on its own schedule
	ring := NewRingBuffer(len(museChannelNames), config.Stream.BufferSamples(config.Board.SampleRate))
	push := func(block SampleBlock) {
		if err := ring.Push(block); err != nil {
			log.Printf("WARNING: Dropping sample block: %v", err)
			return
		}
		if metrics != nil {
			metrics.AddSampleBlock(len(block.Samples[0]))
		}
	}

	source, err := StartSource(&config.Board, push)
	if err != nil {
		log.Fatalf("Failed to start sample source: %v", err)
	}
	defer source.Stop()

	metadata := source.Metadata()
	mode := ModeLive
	if metadata.Synthetic {
		mode = ModeSynthetic
	}
	log.Printf("Board started: mode=%s, rate=%d Hz, channels=%v",
		mode, metadata.SampleRate, metadata.ChannelNames)
	if metrics != nil {
		metrics.SetBoardSynthetic(metadata.Synthetic)
	}

	clients := NewClientManager(metrics)

	extractor := &Extractor{
		ChannelNames: metadata.ChannelNames,
		MaxFreqHz:    config.Stream.MaxFreqHz,
		RawTail:      config.Stream.RawTailSamples(metadata.SampleRate),
	}

	broadcaster, err := NewBroadcaster(ring, clients, extractor, &config.Stream, metadata.SampleRate, metrics)
	if err != nil {
		log.Fatalf("Failed to create broadcaster: %v", err)
	}

	var mqttPublisher *MQTTPublisher
	if config.MQTT.Enabled {
		mqttPublisher, err = NewMQTTPublisher(&config.MQTT, broadcaster)
		if err != nil {
			log.Printf("Warning: MQTT publisher disabled: %v", err)
		} else {
			// Keep frames flowing for MQTT even with no websocket clients
			broadcaster.SetAlwaysExtract(true)
			mqttPublisher.Start()
			defer mqttPublisher.Stop()
		}
	}

	broadcaster.Start()
	defer broadcaster.Stop()

	// HTTP routes
	mux := http.NewServeMux()
	wsHandler := NewWebSocketHandler(clients, metrics)
	apiHandler := NewAPIHandler(metadata, clients, config)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.HandleFunc("/api/info", apiHandler.HandleInfo)
	mux.HandleFunc("/api/status", apiHandler.HandleStatus)
	if config.Prometheus.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("Prometheus metrics enabled at /metrics")
	}
	mux.Handle("/", http.FileServer(http.Dir(config.Server.StaticDir)))

	server := &http.Server{
		Addr:    config.Server.Listen,
		Handler: mux,
	}

	go func() {
		log.Printf("Dashboard ready at http://%s (mode: %s)", config.Server.Listen, mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("ERROR: HTTP server shutdown: %v", err)
	}

	clients.CloseAll()
}
