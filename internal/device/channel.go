package device

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vacuum-rental-backend/config"
)

// Publisher abstracts the outbound half of the device command channel so the
// dispatcher can be tested without a broker.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Channel is the MQTT link between the engine and the physical controllers.
type Channel struct {
	client mqtt.Client
	prefix string
}

// NewChannel connects to the broker and subscribes to the advisory telemetry
// topic. The connection auto-reconnects and re-subscribes on reconnect.
func NewChannel(cfg *config.DeviceConfig) (*Channel, error) {
	ch := &Channel{prefix: cfg.TopicPrefix}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("device channel: connection established")
		if err := ch.subscribeTelemetry(client); err != nil {
			log.Printf("device channel: telemetry subscribe failed: %v", err)
		}
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("device channel: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	ch.client = client

	log.Println("device channel: connected to broker:", cfg.Broker)
	return ch, nil
}

// Publish sends a payload on the channel. Commands are QoS 1: at-least-once,
// idempotent at the controller.
func (ch *Channel) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := ch.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (ch *Channel) Close() {
	ch.client.Disconnect(250)
	log.Println("device channel: disconnected")
}

func (ch *Channel) subscribeTelemetry(client mqtt.Client) error {
	topic := ch.prefix + "/+/telemetry"
	token := client.Subscribe(topic, 1, ch.handleTelemetry)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("device channel: subscribed to %s", topic)
	return nil
}

// handleTelemetry logs controller state reports. Telemetry is advisory only;
// the session store stays the source of truth.
func (ch *Channel) handleTelemetry(_ mqtt.Client, msg mqtt.Message) {
	var t Telemetry
	if err := json.Unmarshal(msg.Payload(), &t); err != nil {
		log.Printf("device channel: bad telemetry on %s: %v", msg.Topic(), err)
		return
	}
	if t.MachineID == "" {
		t.MachineID = machineIDFromTopic(msg.Topic())
	}
	log.Printf("device channel: telemetry machine=%s state=%s", t.MachineID, t.State)
}

// machineIDFromTopic extracts the machine identifier from a topic like
// "vacuum/{machine_id}/telemetry".
func machineIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return ""
}
