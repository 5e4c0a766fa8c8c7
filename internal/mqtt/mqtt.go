// Package mqtt publishes zone setpoints and Home Assistant discovery messages.
package mqtt

import (
	"encoding/json"
	"fmt"
)

// DiscoveryPrefix is the Home Assistant MQTT discovery prefix.
const DiscoveryPrefix = "homeassistant"

// NoData is published as the state of a sensor without a setpoint. Home Assistant reads it as
// "unknown".
const NoData = "None"

// Publisher publishes discovery and state messages to the broker.
type Publisher interface {
	// PublishDiscovery announces one sensor of a zone. Retained, so repeated calls are upserts.
	PublishDiscovery(zone, sensorKey, friendlyName, uniqueID string) error

	// PublishState publishes the current value of one sensor of a zone.
	PublishState(zone, sensorKey, value string) error

	// Close disconnects from the broker.
	Close() error
}

// Topics builds topic names under a base topic.
type Topics struct {
	Base string
}

func (t Topics) State(zone, sensorKey string) string {
	return fmt.Sprintf("%s/zone/%s/%s/state", t.Base, zone, sensorKey)
}

func (t Topics) Discovery(zone, sensorKey string) string {
	return fmt.Sprintf("%s/sensor/%s_%s_%s/config", DiscoveryPrefix, t.Base, zone, sensorKey)
}

// Availability is where the exporter reports online/offline.
func (t Topics) Availability() string {
	return t.Base + "/status"
}

// Device groups all exporter sensors under one Home Assistant device.
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
}

var ExporterDevice = Device{
	Identifiers:  []string{"tado_exporter"},
	Manufacturer: "tado",
	Model:        "tado-setpoint-exporter",
	Name:         "Tado Exporter",
}

// DiscoveryPayload is the Home Assistant sensor config message.
type DiscoveryPayload struct {
	Name              string `json:"name"`
	StateTopic        string `json:"state_topic"`
	AvailabilityTopic string `json:"availability_topic,omitempty"`
	UniqueID          string `json:"unique_id"`
	Device            Device `json:"device"`
	UnitOfMeasurement string `json:"unit_of_measurement"`
	DeviceClass       string `json:"device_class"`
	StateClass        string `json:"state_class"`
	ValueTemplate     string `json:"value_template"`
}

// FormatDiscoveryPayload creates the JSON discovery payload for one zone sensor.
func FormatDiscoveryPayload(t Topics, zone, sensorKey, friendlyName, uniqueID string) ([]byte, error) {
	return json.Marshal(DiscoveryPayload{
		Name:              friendlyName,
		StateTopic:        t.State(zone, sensorKey),
		AvailabilityTopic: t.Availability(),
		UniqueID:          uniqueID,
		Device:            ExporterDevice,
		UnitOfMeasurement: "°C",
		DeviceClass:       "temperature",
		StateClass:        "measurement",
		ValueTemplate:     "{{ value | float(None) }}",
	})
}
