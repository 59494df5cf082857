package pubsub

import "encoding/json"

// Channels shared by gateway instances.
const (
	// ChannelDelivery carries events that must reach live connections on
	// every gateway instance.
	ChannelDelivery = "chat:gateway:delivery"
)

// Event types.
const (
	EventDeliver = "deliver"
)

// DeliverPayload asks every instance to push Frame to the local connections
// of Recipients.
type DeliverPayload struct {
	Recipients []string        `json:"recipients"`
	Frame      json.RawMessage `json:"frame"`
}
