package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/carpool/internal/models"
)

// Backend state names.
const (
	wireCreated    = "CREADO"
	wireInProgress = "ENCURSO"
	wireFinished   = "FINALIZADO"
	wireCanceled   = "CANCELADO"
)

// Role names used in the cancel request body.
const (
	wireDriver    = "CONDUCTOR"
	wirePassenger = "PASAJERO"
)

var stateFromWire = map[string]models.TripState{
	wireCreated:    models.TripCreated,
	wireInProgress: models.TripInProgress,
	wireFinished:   models.TripFinished,
	wireCanceled:   models.TripCanceled,
}

// WireTime accepts the backend's local date-times, with or without zone and
// fractional seconds.
type WireTime struct {
	time.Time
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func (t *WireTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("time: %s is not a string", b)
	}
	if s == "" {
		return nil
	}
	for _, layout := range wireTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("time: unrecognised format %q", s)
}

func (t WireTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format("2006-01-02T15:04:05"))
}

// WireAuthor is the author block of a chat message.
type WireAuthor struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// WireMessage is a chat message as the backend serializes it, both inside
// trip snapshots and on the messaging channel.
type WireMessage struct {
	ID      json.Number `json:"id,omitempty"`
	Content string      `json:"contenido"`
	SentAt  WireTime    `json:"fechaEnvio"`
	Author  WireAuthor  `json:"autor"`
}

// ToServerMessage converts the wire form, rejecting messages with no id.
func (m WireMessage) ToServerMessage() (models.ServerMessage, error) {
	id := strings.TrimSpace(m.ID.String())
	if id == "" {
		return models.ServerMessage{}, fmt.Errorf("message has no id")
	}
	return models.ServerMessage{
		ID:         id,
		Content:    m.Content,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Name,
		SentAt:     m.SentAt.Time,
	}, nil
}

type wireVehicle struct {
	Plate string `json:"placa"`
	Brand string `json:"marca"`
	Model string `json:"modelo"`
	Color string `json:"color"`
}

type wireDriverInfo struct {
	ID      int64        `json:"id"`
	Name    string       `json:"nombre"`
	Phone   string       `json:"celular"`
	Vehicle *wireVehicle `json:"vehiculo"`
}

type wirePassengerInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"nombre"`
	Phone string `json:"celular"`
}

type wireChat struct {
	ID       int64         `json:"id"`
	Messages []WireMessage `json:"mensajes"`
}

type wireTrip struct {
	ID            int64               `json:"id"`
	Origin        string              `json:"origen"`
	Destination   string              `json:"destino"`
	DepartureTime WireTime            `json:"horaSalida"`
	SeatsMax      int                 `json:"cuposMaximos"`
	Passengers    []wirePassengerInfo `json:"pasajeros"`
	Driver        *wireDriverInfo     `json:"conductor"`
	State         string              `json:"estadoViaje"`
	Chat          *wireChat           `json:"chat"`
}

// decodeTrip parses a trip body. A literal null or empty body yields a nil
// trip and no error.
func decodeTrip(body []byte) (*models.Trip, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	var w wireTrip
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode trip: %w", err)
	}
	state, ok := stateFromWire[strings.ToUpper(strings.TrimSpace(w.State))]
	if !ok {
		return nil, fmt.Errorf("decode trip %d: unknown state %q", w.ID, w.State)
	}

	trip := &models.Trip{
		ID:            w.ID,
		Origin:        w.Origin,
		Destination:   w.Destination,
		DepartureTime: w.DepartureTime.Time,
		SeatsMax:      w.SeatsMax,
		State:         state,
	}
	for _, p := range w.Passengers {
		trip.Passengers = append(trip.Passengers, models.Passenger{ID: p.ID, Name: p.Name, Phone: p.Phone})
	}
	if w.Driver != nil {
		trip.Driver = models.Driver{ID: w.Driver.ID, Name: w.Driver.Name, Phone: w.Driver.Phone}
		if v := w.Driver.Vehicle; v != nil {
			trip.Driver.Vehicle = models.Vehicle{Plate: v.Plate, Brand: v.Brand, Model: v.Model, Color: v.Color}
		}
	}
	if w.Chat != nil {
		chatID := w.Chat.ID
		trip.ChatID = &chatID
		for _, wm := range w.Chat.Messages {
			msg, err := wm.ToServerMessage()
			if err != nil {
				continue
			}
			trip.ChatMessages = append(trip.ChatMessages, msg)
		}
	}
	return trip, nil
}

func roleToWire(role models.Role) (string, error) {
	switch role {
	case models.RoleDriver:
		return wireDriver, nil
	case models.RolePassenger:
		return wirePassenger, nil
	}
	return "", fmt.Errorf("gateway: unknown role %q", role)
}

type cancelRequest struct {
	UserID int64  `json:"idUsuario"`
	Kind   string `json:"tipo"`
}

type commentRequest struct {
	UserID int64  `json:"usuarioId"`
	Text   string `json:"texto"`
	TripID int64  `json:"viajeId"`
}
