package config

import "os"

type MqttConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
}

// Enabled reports whether an MQTT broker was configured
func (c *MqttConfig) Enabled() bool {
	return c.Broker != ""
}

func NewMqttConfig() *MqttConfig {
	prefix := os.Getenv("MQTT_TOPIC_PREFIX")
	if prefix == "" {
		prefix = "stateline"
	}
	return &MqttConfig{
		Broker:      os.Getenv("MQTT_BROKER"),
		TopicPrefix: prefix,
		ClientID:    os.Getenv("MQTT_CLIENT_ID"),
	}
}
