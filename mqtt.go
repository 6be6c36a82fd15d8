package main

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher periodically publishes a per-channel feature summary so
// home-automation or logging setups can consume band powers without holding
// a websocket open
type MQTTPublisher struct {
	client      mqtt.Client
	config      *MQTTConfig
	broadcaster *Broadcaster

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// bandSummaryPayload is the MQTT message shape
type bandSummaryPayload struct {
	Timestamp     float64                       `json:"timestamp"`
	BandPowers    map[string]map[string]float64 `json:"band_powers"`
	SignalQuality map[string]float64            `json:"signal_quality"`
}

// generateClientID creates a random client ID for the MQTT connection
func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "neuroview_" + hex.EncodeToString(bytes)
}

// loadMQTTTLSConfig loads TLS material from the configured files
func loadMQTTTLSConfig(tlsConfig MQTTTLSConfig) (*tls.Config, error) {
	if !tlsConfig.Enabled {
		return nil, nil
	}

	config := &tls.Config{}

	if tlsConfig.CACert != "" {
		caCert, err := os.ReadFile(tlsConfig.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	if tlsConfig.ClientCert != "" && tlsConfig.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.ClientCert, tlsConfig.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// NewMQTTPublisher connects to the broker and prepares the publish loop
func NewMQTTPublisher(config *MQTTConfig, broadcaster *Broadcaster) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if config.TLS.Enabled {
		tlsConfig, err := loadMQTTTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTPublisher{
		client:      client,
		config:      config,
		broadcaster: broadcaster,
		stopChan:    make(chan struct{}),
	}, nil
}

// Start begins the publish loop
func (p *MQTTPublisher) Start() {
	p.wg.Add(1)
	go p.publishLoop()
	log.Printf("MQTT publisher started: broker=%s, topic=%s/bands, interval=%ds",
		p.config.Broker, p.config.TopicPrefix, p.config.IntervalSeconds)
}

// Stop halts publishing and disconnects. Idempotent.
func (p *MQTTPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
	p.client.Disconnect(250)
	log.Println("MQTT publisher stopped")
}

func (p *MQTTPublisher) publishLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Duration(p.config.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.publishSummary()
		}
	}
}

func (p *MQTTPublisher) publishSummary() {
	frame := p.broadcaster.LatestFrame()
	if frame == nil {
		return
	}

	payload := bandSummaryPayload{
		Timestamp:     frame.Timestamp,
		BandPowers:    frame.BandPowers,
		SignalQuality: frame.SignalQuality,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: Failed to marshal MQTT payload: %v", err)
		return
	}

	topic := p.config.TopicPrefix + "/bands"
	token := p.client.Publish(topic, 0, false, data)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("ERROR: Failed to publish to %s: %v", topic, token.Error())
	}
}
