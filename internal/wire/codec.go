package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	// ErrMalformed reports a frame that is not a JSON object with a type field.
	ErrMalformed = errors.New("malformed event")
	// ErrUnknownKind reports a well-formed frame with an unrecognized type.
	ErrUnknownKind = errors.New("unknown event kind")
)

type envelopeHeader struct {
	Type Kind `json:"type"`
}

// Encode serializes an event into its envelope form.
func Encode(event Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformed)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	header, err := json.Marshal(envelopeHeader{Type: event.Kind()})
	if err != nil {
		return nil, err
	}

	// splice {"type":"..."} and the event's own fields into one object
	fields := bytes.TrimSpace(body)
	fields = bytes.TrimPrefix(fields, []byte("{"))
	fields = bytes.TrimSpace(fields)
	out := make([]byte, 0, len(header)+len(fields)+1)
	out = append(out, header[:len(header)-1]...)
	if !bytes.Equal(fields, []byte("}")) {
		out = append(out, ',')
	}
	out = append(out, fields...)
	return out, nil
}

// Decode parses an envelope into its concrete event.
func Decode(data []byte) (Event, error) {
	var header envelopeHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if header.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var (
		event Event
		err   error
	)
	switch header.Type {
	case KindConnection:
		event, err = decodeInto[ConnectionAck](data)
	case KindNewMessage:
		event, err = decodeInto[NewMessage](data)
	case KindMessageDelivered:
		event, err = decodeInto[MessageDelivered](data)
	case KindTyping:
		event, err = decodeInto[Typing](data)
	case KindUserStatus:
		event, err = decodeInto[UserStatus](data)
	case KindNotification:
		event, err = decodeInto[NotificationPushed](data)
	case KindNotificationCount:
		event, err = decodeInto[NotificationCount](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, header.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, header.Type, err)
	}
	return event, nil
}

func decodeInto[T Event](data []byte) (Event, error) {
	var target T
	if err := json.Unmarshal(data, &target); err != nil {
		return nil, err
	}
	return target, nil
}
