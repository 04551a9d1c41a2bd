package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremetrics "github.com/kilianp07/vrf/core/metrics"
	coremon "github.com/kilianp07/vrf/core/monitoring"
	"github.com/kilianp07/vrf/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	AuthMethod  string      `json:"auth_method"`
	QoS         byte        `json:"qos"`
	LWTTopic    string      `json:"lwt_topic"`
	LWTPayload  string      `json:"lwt_payload"`
	LWTQoS      byte        `json:"lwt_qos"`
	LWTRetain   bool        `json:"lwt_retain"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "vrf"
	}
	if c.ClientID == "" {
		c.ClientID = "vrf-" + uuid.NewString()
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt: broker is required")
	}
	if c.QoS > 2 || c.LWTQoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	switch c.AuthMethod {
	case "", "username_password", "mtls", "both":
	default:
		return fmt.Errorf("mqtt: unknown auth_method %q", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher streams training progress to an MQTT broker. Epoch and
// evaluation summaries go to <prefix>/<run_id>/epoch and
// <prefix>/<run_id>/evaluation; run transitions are retained on
// <prefix>/<run_id>/status. It also listens on <prefix>/+/control for stop
// requests.
type Publisher struct {
	cli        pahoClient
	prefix     string
	qos        byte
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger

	mu     sync.Mutex
	mon    coremon.Monitor
	onStop func(runID string)
}

// NewPublisher connects to the broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_publisher")
	p := &Publisher{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
		mon:        coremon.NopMonitor{},
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(p.prefix+"/+/control", p.qos, p.onControl); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "mtls" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s holds no certificate", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// SetMonitor reports publish failures to m.
func (p *Publisher) SetMonitor(m coremon.Monitor) {
	p.mu.Lock()
	p.mon = coremon.OrNop(m)
	p.mu.Unlock()
}

// OnStop registers the callback invoked when a stop command arrives on a
// control topic.
func (p *Publisher) OnStop(f func(runID string)) {
	p.mu.Lock()
	p.onStop = f
	p.mu.Unlock()
}

// Topic returns the topic of kind for a run.
func (p *Publisher) Topic(runID, kind string) string {
	return p.prefix + "/" + runID + "/" + kind
}

func (p *Publisher) onControl(_ paho.Client, msg paho.Message) {
	var m struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode control message: %v", err)
		return
	}
	parts := strings.Split(strings.TrimPrefix(msg.Topic(), p.prefix+"/"), "/")
	if len(parts) != 2 || parts[1] != "control" {
		return
	}
	if m.Command != "stop" {
		p.logger.Warnf("ignoring control command %q for run %s", m.Command, parts[0])
		return
	}
	p.mu.Lock()
	f := p.onStop
	p.mu.Unlock()
	if f != nil {
		p.logger.Infof("stop requested for run %s", parts[0])
		f(parts[0])
	}
}

type binPayload struct {
	Lo        float64  `json:"lo"`
	Hi        float64  `json:"hi"`
	Count     int      `json:"count"`
	MeanError *float64 `json:"mean_error"`
}

// RecordEpoch publishes the epoch summary.
func (p *Publisher) RecordEpoch(rec coremetrics.EpochRecord) error {
	payload := struct {
		RunID      string    `json:"run_id"`
		Epoch      int       `json:"epoch"`
		TrainLoss  float64   `json:"train_loss"`
		DevLoss    float64   `json:"dev_loss"`
		Batches    int       `json:"batches"`
		Skipped    int       `json:"skipped"`
		DurationMS int64     `json:"duration_ms"`
		Improved   bool      `json:"improved"`
		Stalled    int       `json:"stalled"`
		Timestamp  time.Time `json:"timestamp"`
	}{rec.RunID, rec.Epoch, rec.TrainLoss, rec.DevLoss, rec.Batches, rec.Skipped,
		rec.Duration.Milliseconds(), rec.Improved, rec.Stalled, rec.Time}
	return p.publishJSON(rec.RunID, "epoch", false, payload)
}

// RecordEvaluation publishes the evaluation report. Empty bins carry a null
// mean error.
func (p *Publisher) RecordEvaluation(rec coremetrics.EvaluationRecord) error {
	bins := make([]binPayload, len(rec.Bins))
	for i, b := range rec.Bins {
		bins[i] = binPayload{Lo: b.Lo, Hi: b.Hi, Count: b.Count}
		if b.Defined {
			v := b.MeanError
			bins[i].MeanError = &v
		}
	}
	payload := struct {
		RunID     string       `json:"run_id"`
		Epoch     int          `json:"epoch"`
		Loss      float64      `json:"loss"`
		MeanError float64      `json:"mean_error"`
		Bins      []binPayload `json:"bins"`
		Timestamp time.Time    `json:"timestamp"`
	}{rec.RunID, rec.Epoch, rec.Loss, rec.MeanError, bins, rec.Time}
	return p.publishJSON(rec.RunID, "evaluation", false, payload)
}

// RecordRun publishes a retained run status.
func (p *Publisher) RecordRun(rec coremetrics.RunRecord) error {
	payload := struct {
		RunID     string    `json:"run_id"`
		Status    string    `json:"status"`
		Epochs    int       `json:"epochs"`
		Timestamp time.Time `json:"timestamp"`
	}{rec.RunID, rec.Status, rec.Epochs, rec.Time}
	return p.publishJSON(rec.RunID, "status", true, payload)
}

func (p *Publisher) publishJSON(runID, kind string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	topic := p.Topic(runID, kind)
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %s", topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	p.mu.Lock()
	mon := p.mon
	p.mu.Unlock()
	mon.CaptureException(publishErr, map[string]string{"module": "mqtt", "run_id": runID, "topic": topic})
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (p *Publisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
