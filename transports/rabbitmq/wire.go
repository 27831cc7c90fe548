package rabbitmq

import (
	"encoding/json"
	"fmt"
)

// wireBody is the JSON frame request payloads travel in. Wrapping the body
// keeps nil and string payloads distinguishable on the wire.
type wireBody struct {
	Body any `json:"body"`
}

// wireReply is the JSON frame replies travel in. Error and Body are mutually
// exclusive.
type wireReply struct {
	Body  any    `json:"body,omitempty"`
	Error string `json:"error,omitempty"`
}

func encodeBody(body any) ([]byte, error) {
	data, err := json.Marshal(wireBody{Body: body})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, nil
}

func decodeBody(data []byte) (any, error) {
	var frame wireBody
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("failed to decode request body: %w", err)
	}
	return frame.Body, nil
}

func encodeReply(reply wireReply) ([]byte, error) {
	data, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}
	return data, nil
}

func decodeReply(data []byte) (wireReply, error) {
	var reply wireReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return wireReply{}, fmt.Errorf("failed to decode reply: %w", err)
	}
	return reply, nil
}
