// Package serialization converts domain events to and from their wire form.
// Payloads travel as protobuf Struct messages; the event type and timestamp
// ride alongside as message headers.
package serialization

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
)

// EncodePayload marshals an event payload into a protobuf Struct.
func EncodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	s, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("converting payload to struct: %w", err)
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return b, nil
}

// DecodePayload is the inverse of EncodePayload. Numbers come back as float64.
func DecodePayload(data []byte) (map[string]any, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling payload: %w", err)
	}
	return s.AsMap(), nil
}

// EncodeTimestamp marshals t as a protobuf Timestamp.
func EncodeTimestamp(t time.Time) ([]byte, error) {
	return proto.Marshal(timestamppb.New(t))
}

// DecodeTimestamp is the inverse of EncodeTimestamp.
func DecodeTimestamp(data []byte) (time.Time, error) {
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(data, &ts); err != nil {
		return time.Time{}, fmt.Errorf("unmarshaling timestamp: %w", err)
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, err
	}
	return ts.AsTime(), nil
}

// Decode rebuilds a domain event from its wire parts.
func Decode(eventType, key string, timestamp, payload []byte) (events.DomainEvent, error) {
	ts, err := DecodeTimestamp(timestamp)
	if err != nil {
		return events.DomainEvent{}, err
	}
	p, err := DecodePayload(payload)
	if err != nil {
		return events.DomainEvent{}, err
	}
	return events.NewDomainEvent(events.EventType(eventType), key, ts, p), nil
}
