// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package broker wraps the paho MQTT client with JSON helpers shared by
// the producers, the tracker and the console.
package broker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const disconnectQuiesceMS = 250

// ClientConfig holds MQTT client configuration.
type ClientConfig struct {
	Broker   string
	ClientID string
	// UniqueID appends a random suffix so several instances can share the
	// configured client id.
	UniqueID bool
}

// Client is a connected MQTT client.
type Client struct {
	client mqtt.Client
	log    *slog.Logger
}

// clientID returns the id to connect with.
func (c ClientConfig) clientID() string {
	if !c.UniqueID {
		return c.ClientID
	}
	return c.ClientID + "-" + uuid.NewString()[:8]
}

// Connect dials the broker and waits for the connection.
func Connect(cfg ClientConfig, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	id := cfg.clientID()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(id).
		SetAutoReconnect(true).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Debug("mqtt: connection established", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt: connection lost", "broker", cfg.Broker, "err", err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	log.Info("mqtt: connected", "broker", cfg.Broker, "client_id", id)

	return &Client{client: client, log: log}, nil
}

// PublishJSON marshals v and publishes it with QoS 0.
func (c *Client) PublishJSON(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", topic, err)
	}
	if token := c.client.Publish(topic, 0, retained, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

// Subscribe registers handler for raw payloads on topic.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	token := c.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	c.log.Info("mqtt: subscribed", "topic", topic)
	return nil
}

// Unsubscribe removes the handler for topic.
func (c *Client) Unsubscribe(topic string) error {
	token := c.client.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

// Close disconnects after letting in-flight work finish.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesceMS)
	c.log.Info("mqtt: disconnected")
}

// SubscribeJSON decodes every message on topic into a T and passes it to
// handler. Payloads that do not decode are logged and dropped.
func SubscribeJSON[T any](c *Client, topic string, handler func(T)) error {
	return c.Subscribe(topic, func(payload []byte) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			c.log.Warn("mqtt: unmarshal failed", "topic", topic, "err", err)
			return
		}
		handler(v)
	})
}
