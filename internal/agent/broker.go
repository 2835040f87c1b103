package agent

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/GustavPetterssonBjorklund/Statix/internal/nodeauth"
)

// websocketPort selects the ws transport; everything else dials raw TCP.
const websocketPort = 9001

// BrokerConn is one broker session. The session loop owns its lifetime;
// auto-reconnect stays off at this layer.
type BrokerConn interface {
	// Publish sends one message at the given QoS and waits for the ack.
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// Lost is closed when the connection drops.
	Lost() <-chan struct{}

	Disconnect()
}

// BrokerDialer opens broker sessions. Tests substitute fakes.
type BrokerDialer interface {
	Dial(creds *nodeauth.BrokerCredentials, clientID string, timeout time.Duration) (BrokerConn, error)
}

// BrokerURL renders the dial string for a credential tuple.
func BrokerURL(creds *nodeauth.BrokerCredentials) string {
	if creds.Port == websocketPort {
		return fmt.Sprintf("ws://%s:%d", creds.Host, creds.Port)
	}
	return fmt.Sprintf("tcp://%s:%d", creds.Host, creds.Port)
}

// pahoDialer is the production BrokerDialer.
type pahoDialer struct{}

// NewBrokerDialer returns the paho-backed dialer.
func NewBrokerDialer() BrokerDialer {
	return pahoDialer{}
}

func (pahoDialer) Dial(creds *nodeauth.BrokerCredentials, clientID string, timeout time.Duration) (BrokerConn, error) {
	lost := make(chan struct{})

	opts := mqtt.NewClientOptions().
		AddBroker(BrokerURL(creds)).
		SetClientID(clientID).
		SetUsername(creds.Username).
		SetPassword(creds.Password).
		SetConnectTimeout(timeout).
		SetAutoReconnect(false). // the session loop owns reconnection
		SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, _ error) {
		close(lost)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("broker connect timed out after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}
	return &pahoConn{client: client, lost: lost}, nil
}

type pahoConn struct {
	client mqtt.Client
	lost   chan struct{}
}

func (c *pahoConn) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *pahoConn) Lost() <-chan struct{} { return c.lost }

func (c *pahoConn) Disconnect() {
	c.client.Disconnect(250)
}
