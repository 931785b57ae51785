package floorplan

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// IngestHandler is called for every webhook body received on the ingest topic.
// env is nil when the payload could not be decoded.
type IngestHandler func(topic string, env *Envelope, err error)

// MQTTClient manages the broker connection used for the ingest subscription
// and for floor update events.
type MQTTClient struct {
	client        mqtt.Client
	config        MQTTConfig
	ingestHandler IngestHandler
	isConnected   bool
	mu            sync.RWMutex
}

// InitMQTT connects to the configured broker in the background. An empty
// broker disables MQTT and returns nil, nil.
func InitMQTT(config MQTTConfig, handler IngestHandler) (*MQTTClient, error) {
	if config.Broker == "" {
		log.Info().Msg("MQTT disabled: no broker configured")
		return nil, nil
	}
	if config.IngestTopic != "" && handler == nil {
		return nil, fmt.Errorf("mqtt.ingestTopic set but no ingest handler provided")
	}

	c := &MQTTClient{
		config:        config,
		ingestHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)

	clientID := config.ClientID
	if clientID == "" {
		clientID = "blemap"
	}
	opts.SetClientID(clientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep the ingest subscription across reconnects
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)

	go c.connectWithRetry()

	return c, nil
}

// connectWithRetry attempts to connect to the broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Info().Str("broker", c.config.Broker).Msg("Connecting to MQTT broker")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Info().Msg("Connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Warn().Err(token.Error()).Msg("MQTT connection failed")
		} else {
			log.Warn().Msg("MQTT connection timeout")
		}

		log.Info().Dur("retryIn", retryDelay).Msg("Retrying MQTT connection")
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the ingest topic when one is configured
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	if c.config.IngestTopic == "" {
		return
	}

	log.Info().Str("topic", c.config.IngestTopic).Msg("Subscribing to ingest topic")
	token := client.Subscribe(c.config.IngestTopic, 1, c.handleIngest)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", c.config.IngestTopic).Msg("Ingest subscription failed")
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Warn().Err(err).Msg("MQTT connection interrupted, auto-reconnect will retry")
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Info().Msg("MQTT reconnecting")
}

func (c *MQTTClient) handleIngest(client mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	log.Debug().Str("topic", msg.Topic()).Int("bytes", len(payload)).Msg("Received observation batch")

	env, err := DecodeEnvelope(payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Undecodable ingest payload")
	}
	if c.ingestHandler != nil {
		c.ingestHandler(msg.Topic(), env, err)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Info().Msg("Disconnecting from MQTT broker")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wraps an existing client, for tests
func newMQTTClientWithMock(client mqtt.Client, config MQTTConfig, handler IngestHandler) *MQTTClient {
	return &MQTTClient{
		client:        client,
		config:        config,
		ingestHandler: handler,
	}
}
