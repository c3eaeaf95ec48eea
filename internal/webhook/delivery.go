package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Receiver version reported via /health.
const ProtocolVersion = "1.0.0"

// Delivery captures a single notification pushed by the forge when a
// submission repository changes.
type Delivery struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Repo       string          `json:"repo"`
	Ref        string          `json:"ref,omitempty"`
	Number     int             `json:"number,omitempty"`
	Action     string          `json:"action,omitempty"`
	Sender     string          `json:"sender,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"-"`
}

type hookPayload struct {
	Ref    string `json:"ref"`
	Action string `json:"action"`
	Number int    `json:"number"`

	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// parseDelivery builds a Delivery from the webhook headers and body.
func parseDelivery(event, id string, body []byte) (Delivery, error) {
	var payload hookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Delivery{}, fmt.Errorf("webhook: decode payload: %w", err)
	}
	number := payload.Number
	if number == 0 {
		number = payload.PullRequest.Number
	}
	return Delivery{
		ID:      id,
		Event:   event,
		Repo:    payload.Repository.FullName,
		Ref:     payload.Ref,
		Number:  number,
		Action:  payload.Action,
		Sender:  payload.Sender.Login,
		Payload: body,
	}, nil
}

// Normalize applies defaults and canonical formatting before validation.
// Deliveries without an ID get a generated one so dedupe still works.
func (d *Delivery) Normalize() {
	if d == nil {
		return
	}
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Event = strings.TrimSpace(strings.ToLower(d.Event))
	d.Repo = strings.TrimSpace(d.Repo)
	d.Ref = strings.TrimSpace(d.Ref)
	d.Action = strings.TrimSpace(strings.ToLower(d.Action))
	d.Sender = strings.TrimSpace(d.Sender)
}

// Stamp overwrites ReceivedAt with the supplied clock reading (UTC).
func (d *Delivery) Stamp(now time.Time) {
	if d == nil {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	d.ReceivedAt = now.UTC()
}

// Validate enforces baseline requirements for incoming deliveries.
func (d Delivery) Validate() error {
	if d.Event == "" {
		return errors.New("event is required")
	}
	if d.Event == "ping" {
		return nil
	}
	if d.Repo == "" {
		return errors.New("repository is required")
	}
	if d.Event == "pull_request" && d.Number == 0 {
		return errors.New("pull request number is required")
	}
	return nil
}

// Relevant reports whether the delivery should trigger a grading re-run.
// Pushes always do; pull requests only when their content changed.
func (d Delivery) Relevant() bool {
	switch d.Event {
	case "push":
		return true
	case "pull_request":
		switch d.Action {
		case "opened", "synchronize", "reopened", "ready_for_review":
			return true
		}
	}
	return false
}

// Handler consumes validated deliveries.
type Handler interface {
	HandleDelivery(Delivery) error
}

// HandlerFunc adapts a function into a Handler.
type HandlerFunc func(Delivery) error

// HandleDelivery executes f(d).
func (f HandlerFunc) HandleDelivery(d Delivery) error {
	if f == nil {
		return nil
	}
	return f(d)
}

// Logger records receiver status information. It matches logging.Logger's
// signature.
type Logger interface {
	Printf(format string, args ...any)
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type hookResponse struct {
	Status     string    `json:"status"`
	Delivery   string    `json:"delivery"`
	ReceivedAt time.Time `json:"received_at"`
}
