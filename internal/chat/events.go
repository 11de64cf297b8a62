package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/Tyrowin/gochat-rooms/internal/store"
)

// Inbound "type" values. A frame without a type is a post.
const (
	TypeLoadMore = "load_more"
	TypeMessage  = "message"
)

// Outbound "type" values.
const (
	TypeHistory = "history"
	TypeError   = "error"
)

// DisplayTimeLayout renders message timestamps for display.
const DisplayTimeLayout = "15:04"

// MaxNameLength bounds room and display names.
const MaxNameLength = 100

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Event is an inbound client event.
type Event interface {
	eventType() string
}

// PostMessage asks to persist and broadcast a message.
type PostMessage struct {
	Content  string `json:"message" validate:"nonblank"`
	Username string `json:"username" validate:"max=100"`
}

func (PostMessage) eventType() string { return TypeMessage }

// LoadMore asks for the page of messages older than OldestID.
type LoadMore struct {
	OldestID uint64 `json:"oldest_id" validate:"required"`
}

func (LoadMore) eventType() string { return TypeLoadMore }

// messageID accepts an id sent either as a JSON number or a numeric string.
type messageID uint64

func (id *messageID) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(data, `"`))
	if raw == "null" || raw == "" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %s", data)
	}
	*id = messageID(v)
	return nil
}

type inboundFrame struct {
	Type     string    `json:"type"`
	OldestID messageID `json:"oldest_id"`
	Message  string    `json:"message"`
	Username string    `json:"username"`
}

// DecodeEvent parses and validates one inbound frame. Every failure wraps
// ErrValidation.
func DecodeEvent(raw []byte) (Event, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: malformed event: %w", ErrValidation, err)
	}

	var event Event
	switch frame.Type {
	case TypeLoadMore:
		event = LoadMore{OldestID: uint64(frame.OldestID)}
	case "", TypeMessage:
		event = PostMessage{Content: frame.Message, Username: strings.TrimSpace(frame.Username)}
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrValidation, frame.Type)
	}

	if err := validate.Struct(event); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, describe(err))
	}
	return event, nil
}

type identity struct {
	Room        string `json:"room" validate:"required,max=100"`
	DisplayName string `json:"username" validate:"nonblank,max=100"`
}

func validateIdentity(room, displayName string) error {
	if err := validate.Struct(identity{Room: room, DisplayName: displayName}); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, describe(err))
	}
	return nil
}

// describe turns validator errors into a short client facing sentence.
func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	return strings.Join(lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		field := fe.Field()
		switch fe.Tag() {
		case "required", "nonblank":
			return field + " is required"
		case "max":
			return field + " is too long"
		default:
			return field + " is invalid"
		}
	}), "; ")
}

// MessagePayload is the wire form of a stored message.
type MessagePayload struct {
	ID        uint64    `json:"id"`
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	Timestamp string    `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryPayload answers a load_more request.
type HistoryPayload struct {
	Type     string           `json:"type"`
	Messages []MessagePayload `json:"messages"`
}

// ErrorPayload reports a failure to the connection that caused it.
type ErrorPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewMessagePayload renders msg with an HH:MM timestamp in loc.
func NewMessagePayload(msg store.Message, loc *time.Location) MessagePayload {
	return MessagePayload{
		ID:        msg.ID,
		Message:   msg.Content,
		Username:  msg.Author,
		Timestamp: msg.CreatedAt.In(loc).Format(DisplayTimeLayout),
		CreatedAt: msg.CreatedAt.UTC(),
	}
}

// EncodeLive encodes a broadcast frame. Initial history frames share this shape.
func EncodeLive(msg store.Message, loc *time.Location) ([]byte, error) {
	return json.Marshal(NewMessagePayload(msg, loc))
}

// EncodeHistory encodes a load_more answer; messages are expected oldest first.
func EncodeHistory(messages []store.Message, loc *time.Location) ([]byte, error) {
	return json.Marshal(HistoryPayload{
		Type: TypeHistory,
		Messages: lo.Map(messages, func(msg store.Message, _ int) MessagePayload {
			return NewMessagePayload(msg, loc)
		}),
	})
}

// EncodeError encodes an error frame.
func EncodeError(message string) ([]byte, error) {
	return json.Marshal(ErrorPayload{Type: TypeError, Error: message})
}
