// Package mqttclient announces finished runs on an MQTT broker.
package mqttclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/pipeline"
)

type Client struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		prefix: strings.Trim(opts.TopicPrefix, "/"),
		log:    opts.Log,
	}
	if c.prefix == "" {
		c.prefix = "audiocast"
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("prefix", c.prefix).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// CompletedTopic is where RunCompleted publishes for flow.
func CompletedTopic(prefix string, flow pipeline.Flow) string {
	return fmt.Sprintf("%s/runs/%s/completed", prefix, flow)
}

// RunCompleted publishes n as JSON with QoS 1. It waits for the broker
// until ctx ends.
func (c *Client) RunCompleted(ctx context.Context, n pipeline.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	topic := CompletedTopic(c.prefix, n.Flow)
	token := c.conn.Publish(topic, 1, false, payload)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return fmt.Errorf("publish %s: timed out", topic)
	}
	c.log.Debug().Str("topic", topic).Str("run_id", n.RunID).Msg("run completion published")
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}
