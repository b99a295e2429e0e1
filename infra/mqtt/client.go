package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mergeeats/core/core/model"
	"github.com/mergeeats/core/core/partner"
	"github.com/mergeeats/core/infra/logger"
)

const (
	locationTopic     = "partners/+/location"
	availabilityTopic = "partners/+/availability"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	TLSConfig  *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Tracker feeds delivery partner telemetry published by the courier app into
// the partner registry. Partner apps publish their GPS position on
// partners/<id>/location and availability flips on partners/<id>/availability.
type Tracker struct {
	cli      pahoClient
	registry *partner.Registry
	qos      map[string]byte
	logger   logger.Logger
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewTracker connects to the MQTT broker and subscribes to the partner
// telemetry topics.
func NewTracker(cfg Config, registry *partner.Registry) (*Tracker, error) {
	if registry == nil {
		return nil, fmt.Errorf("mqtt: nil registry provided to NewTracker")
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_tracker")
	tr := &Tracker{registry: registry, qos: cfg.QoS, logger: log}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		qos := byte(0)
		if q, ok := tr.qos["telemetry"]; ok {
			qos = q
		}
		if token := c.Subscribe(locationTopic, qos, tr.onLocation); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
		if token := c.Subscribe(availabilityTopic, qos, tr.onAvailability); token.Wait() && token.Error() != nil {
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
	tr.cli = c
	return tr, nil
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
	if cfg.UseTLS {
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
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// partnerID extracts the id segment from partners/<id>/<leaf>.
func partnerID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "partners" {
		return ""
	}
	return parts[1]
}

func (t *Tracker) onLocation(_ paho.Client, msg paho.Message) {
	id := partnerID(msg.Topic())
	if id == "" {
		t.logger.Warnf("location on unexpected topic %s", msg.Topic())
		return
	}
	var m struct {
		Lat       float64 `json:"lat"`
		Lon       float64 `json:"lon"`
		Timestamp int64   `json:"timestamp"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		t.logger.Errorf("failed to decode location: %v", err)
		return
	}
	at := time.UnixMilli(m.Timestamp)
	if m.Timestamp == 0 {
		at = time.Now()
	}
	t.registry.UpdateLocation(id, model.GeoPoint{Lat: m.Lat, Lon: m.Lon}, at)
	t.logger.Debugf("location update for %s", id)
}

func (t *Tracker) onAvailability(_ paho.Client, msg paho.Message) {
	id := partnerID(msg.Topic())
	if id == "" {
		t.logger.Warnf("availability on unexpected topic %s", msg.Topic())
		return
	}
	var m struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		t.logger.Errorf("failed to decode availability: %v", err)
		return
	}
	switch st := model.PartnerStatus(m.Status); st {
	case model.PartnerOnline, model.PartnerOffline, model.PartnerOnBreak:
		t.registry.SetStatus(id, st)
		t.logger.Infof("partner %s is %s", id, st)
	default:
		t.logger.Warnf("unknown availability status %q for %s", m.Status, id)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (t *Tracker) Disconnect() {
	if t.cli != nil && t.cli.IsConnected() {
		t.cli.Disconnect(250)
	}
}
