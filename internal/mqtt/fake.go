package mqtt

// Message is one recorded publish.
type Message struct {
	Topic   string
	Payload []byte
}

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	Topics Topics

	// Discovery contains the discovery messages in publish order.
	Discovery []Message

	// States contains the state messages in publish order.
	States []Message

	// DiscoveryError, if set, will be returned by PublishDiscovery.
	DiscoveryError error

	// StateError, if set, will be returned by PublishState.
	StateError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher(base string) *FakePublisher {
	return &FakePublisher{Topics: Topics{Base: base}}
}

func (f *FakePublisher) PublishDiscovery(zone, sensorKey, friendlyName, uniqueID string) error {
	if f.DiscoveryError != nil {
		return f.DiscoveryError
	}
	payload, err := FormatDiscoveryPayload(f.Topics, zone, sensorKey, friendlyName, uniqueID)
	if err != nil {
		return err
	}
	f.Discovery = append(f.Discovery, Message{Topic: f.Topics.Discovery(zone, sensorKey), Payload: payload})
	return nil
}

func (f *FakePublisher) PublishState(zone, sensorKey, value string) error {
	if f.StateError != nil {
		return f.StateError
	}
	f.States = append(f.States, Message{Topic: f.Topics.State(zone, sensorKey), Payload: []byte(value)})
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// LastState returns the most recent value published to topic.
func (f *FakePublisher) LastState(topic string) (string, bool) {
	for i := len(f.States) - 1; i >= 0; i-- {
		if f.States[i].Topic == topic {
			return string(f.States[i].Payload), true
		}
	}
	return "", false
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.Discovery = nil
	f.States = nil
	f.DiscoveryError = nil
	f.StateError = nil
	f.Closed = false
}
