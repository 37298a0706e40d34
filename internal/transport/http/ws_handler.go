package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"risehigh-xp-service/internal/app"
)

// WSHandler streams a student's XP events as they are recorded.
type WSHandler struct {
	service  *app.ClosingService
	feed     *app.Feed
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ClosingService, feed *app.Feed, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		feed:    feed,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type summaryPayload struct {
	SubmissionID string `json:"submissionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and pushes "xp" messages for the student in
// userId. Clients may ask for "progression" or a submission "summary".
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("userId")
	if studentID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe(studentID)
	defer cancel()

	view, err := h.service.Progression(r.Context(), studentID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case evt, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "xp", Payload: evt}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "subscribed", Payload: view}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "progression":
			view, err := h.service.Progression(r.Context(), studentID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "progression", Payload: view}
		case "summary":
			var payload summaryPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SubmissionID == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid summary payload"}}
				continue
			}
			summary, err := h.service.SubmissionSummary(r.Context(), studentID, payload.SubmissionID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "summary", Payload: summary}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
