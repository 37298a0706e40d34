package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"risehigh-xp-service/internal/app"
	"risehigh-xp-service/internal/metrics"
)

// RouterConfig carries the collaborators of the HTTP surface.
type RouterConfig struct {
	Service       *app.ClosingService
	Feed          *app.Feed
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Logger        logrus.FieldLogger
	WebhookSecret string
}

// NewRouter wires the trigger webhooks, the read endpoints and the live feed.
func NewRouter(cfg RouterConfig) *mux.Router {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := mux.NewRouter()
	r.Use(requestLogger(log, cfg.Metrics))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer)).Methods(http.MethodGet)
	}

	hooks := NewHookHandler(cfg.Service, log)
	hookRoutes := r.PathPrefix("/hooks").Subrouter()
	hookRoutes.Use(RequireWebhookToken(cfg.WebhookSecret))
	hookRoutes.HandleFunc("/challenge-status", hooks.ChallengeStatus).Methods(http.MethodPost)
	hookRoutes.HandleFunc("/submission-rated", hooks.SubmissionRated).Methods(http.MethodPost)

	students := NewStudentHandler(cfg.Service, log)
	r.HandleFunc("/students/{id}/progression", students.Progression).Methods(http.MethodGet)
	r.HandleFunc("/students/{id}/submissions/{sid}/xp", students.SubmissionXP).Methods(http.MethodGet)

	if cfg.Feed != nil {
		r.HandleFunc("/ws", NewWSHandler(cfg.Service, cfg.Feed, log).ServeWS)
	}
	return r
}
