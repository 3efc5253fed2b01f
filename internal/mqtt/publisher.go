package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

// Config holds MQTT connection settings. An empty BrokerURL disables the
// publisher entirely.
type Config struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
	BaseTopic string
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.BrokerURL) != "" }

// Publisher mirrors coordinator events onto retained MQTT state topics and
// announces HA discovery metadata for the battery and reachability sensors.
// It is a pure consumer; a dead broker never affects the refresh path.
type Publisher struct {
	client    paho.Client
	logger    *slog.Logger
	baseTopic string

	mu        sync.Mutex
	announced map[string]bool
}

// New builds a publisher around an auto-reconnecting paho client.
func New(cfg Config, logger *slog.Logger) *Publisher {
	p := &Publisher{
		logger:    logger,
		baseTopic: cfg.BaseTopic,
		announced: make(map[string]bool),
	}
	if p.baseTopic == "" {
		p.baseTopic = "eink_canvas"
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "eink-canvas-addon"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.BrokerURL)
		// Rebroadcast discovery after every reconnect; brokers without
		// persistence lose the retained configs.
		p.mu.Lock()
		p.announced = make(map[string]bool)
		p.mu.Unlock()
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = paho.NewClient(opts)
	return p
}

// Connect dials the broker. With connect-retry enabled a down broker keeps
// retrying in the background rather than failing the add-on.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Run consumes coordinator events until ctx ends or the subscription closes,
// then disconnects.
func (p *Publisher) Run(ctx context.Context, events <-chan coordinator.Event) {
	defer p.client.Disconnect(250)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			p.publishState(event)
		}
	}
}

type statePayload struct {
	Name         string             `json:"name"`
	Battery      *int               `json:"battery,omitempty"`
	Reachability model.Reachability `json:"reachability"`
	Image        string             `json:"image,omitempty"`
	Gallery      string             `json:"gallery,omitempty"`
	Playlist     string             `json:"playlist,omitempty"`
	PlayMode     string             `json:"play_mode"`
	CapturedAt   time.Time          `json:"captured_at"`
	Source       coordinator.Source `json:"source"`
}

func (p *Publisher) publishState(event coordinator.Event) {
	deviceID := slugify(event.Snapshot.Name)
	p.announce(deviceID, event.Snapshot.Name)

	payload, err := json.Marshal(statePayload{
		Name:         event.Snapshot.Name,
		Battery:      event.Snapshot.Battery,
		Reachability: event.Reachability,
		Image:        event.Snapshot.Image,
		Gallery:      event.Snapshot.Gallery,
		Playlist:     event.Snapshot.Playlist,
		PlayMode:     event.Snapshot.PlayMode.String(),
		CapturedAt:   event.CapturedAt,
		Source:       event.Source,
	})
	if err != nil {
		p.logger.Warn("encode mqtt state failed", "error", err)
		return
	}
	topic := fmt.Sprintf("%s/%s/state", p.baseTopic, deviceID)
	if token := p.client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		p.logger.Warn("publish mqtt state failed", "topic", topic, "error", token.Error())
	}
}

type discoveryPayload struct {
	Name              string `json:"name"`
	UniqueID          string `json:"unique_id"`
	StateTopic        string `json:"state_topic"`
	ValueTemplate     string `json:"value_template"`
	DeviceClass       string `json:"device_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
}

// announce publishes HA discovery configs once per device per connection.
func (p *Publisher) announce(deviceID, name string) {
	p.mu.Lock()
	already := p.announced[deviceID]
	p.announced[deviceID] = true
	p.mu.Unlock()
	if already {
		return
	}
	if name == "" {
		name = "Canvas"
	}

	stateTopic := fmt.Sprintf("%s/%s/state", p.baseTopic, deviceID)
	sensors := []struct {
		suffix  string
		payload discoveryPayload
	}{
		{
			suffix: "battery",
			payload: discoveryPayload{
				Name:              name + " Battery",
				UniqueID:          fmt.Sprintf("%s_%s_battery", p.baseTopic, deviceID),
				StateTopic:        stateTopic,
				ValueTemplate:     "{{ value_json.battery }}",
				DeviceClass:       "battery",
				UnitOfMeasurement: "%",
			},
		},
		{
			suffix: "reachability",
			payload: discoveryPayload{
				Name:          name + " Reachability",
				UniqueID:      fmt.Sprintf("%s_%s_reachability", p.baseTopic, deviceID),
				StateTopic:    stateTopic,
				ValueTemplate: "{{ value_json.reachability }}",
			},
		},
	}
	for _, sensor := range sensors {
		topic := fmt.Sprintf("homeassistant/sensor/%s_%s/%s/config", p.baseTopic, deviceID, sensor.suffix)
		payload, err := json.Marshal(sensor.payload)
		if err != nil {
			p.logger.Warn("encode mqtt discovery failed", "error", err)
			continue
		}
		if token := p.client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
			p.logger.Warn("publish mqtt discovery failed", "topic", topic, "error", token.Error())
		}
	}
}

func slugify(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "canvas"
	}
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
