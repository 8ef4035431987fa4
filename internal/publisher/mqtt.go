package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jgoulah/shedcal/internal/config"
	"github.com/jgoulah/shedcal/pkg/models"
)

// Publisher publishes upcoming outage windows to an MQTT broker
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

// New connects to the configured broker
func New(cfg config.MQTTConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT publishing is not enabled in config")
	}
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	// Configure MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("shedcal")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	// Create and connect client
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.GetTopicPrefix(),
	}, nil
}

// Window is one published outage window
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Block string    `json:"block"`
}

// SchedulePayload is the retained message for an area
type SchedulePayload struct {
	Area        string    `json:"area"`
	GeneratedAt time.Time `json:"generated_at"`
	Next        *Window   `json:"next,omitempty"`
	Windows     []Window  `json:"windows"`
}

// BuildPayload turns a range query result into the published payload.
// Windows that ended before now are dropped.
func BuildPayload(area string, data *models.MachineData, now time.Time) SchedulePayload {
	p := SchedulePayload{Area: area, GeneratedAt: now.UTC(), Windows: []Window{}}
	for _, r := range data.Data {
		if r.EndTime.Before(now) {
			continue
		}
		p.Windows = append(p.Windows, Window{Start: r.StartTime, End: r.EndTime, Block: r.Block})
	}
	for i := range p.Windows {
		if p.Next == nil || p.Windows[i].Start.Before(p.Next.Start) {
			p.Next = &p.Windows[i]
		}
	}
	return p
}

// Topic returns the topic an area's schedule is published to
func Topic(prefix, area string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(area))
	return fmt.Sprintf("%s/%s/schedule", strings.TrimRight(prefix, "/"), slug)
}

// Publish sends the schedule of an area as a retained message
func (p *Publisher) Publish(payload SchedulePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	topic := Topic(p.topicPrefix, payload.Area)
	token := p.client.Publish(topic, 1, true, body)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
