package floorplan

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Publisher announces rendered floors on "<prefix>/<networkId>/<floor>".
// It implements Notifier.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          map[FloorKey]FloorUpdate
	mu            sync.RWMutex
}

// NewPublisher creates a publisher. A nil client disables publishing.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // late subscribers get the current image
		last:          make(map[FloorKey]FloorUpdate),
	}
}

// Topic returns the topic for a floor
func (p *Publisher) Topic(networkID, floor string) string {
	return fmt.Sprintf("%s/%s/%s", p.publishPrefix, networkID, floor)
}

// FloorUpdated publishes the update, keeping it as the floor's last known state
func (p *Publisher) FloorUpdated(u FloorUpdate) error {
	p.mu.Lock()
	p.last[FloorKey{NetworkID: u.NetworkID, Floor: u.Floor}] = u
	p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshaling floor update: %w", err)
	}

	topic := p.Topic(u.NetworkID, u.Floor)
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Debug().Str("topic", topic).Str("file", u.Filename).Msg("Published floor update")
	return nil
}

// Last returns the most recent update seen for a floor
func (p *Publisher) Last(key FloorKey) (FloorUpdate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.last[key]
	return u, ok
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
