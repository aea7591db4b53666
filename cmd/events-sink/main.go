package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Clark-Hu/smart-ratings/internal/events"
	"github.com/Clark-Hu/smart-ratings/internal/logging"
)

func main() {
	var (
		port   = flag.String("port", "9099", "port to listen on")
		apiKey = flag.String("api-key", "", "expected X-API-Key value (empty accepts any)")
		level  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logging.Setup(*level, "console", "development")

	var received atomic.Int64
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/*", func(w http.ResponseWriter, r *http.Request) {
		if *apiKey != "" && r.Header.Get("X-API-Key") != *apiKey {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		var evt events.RatingCommitted
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&evt); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		n := received.Add(1)
		logEvt := log.Info().
			Int64("seq", n).
			Str("entity_id", evt.EntityID).
			Str("category_id", evt.CategoryID).
			Str("rating_id", evt.RatingID).
			Int64("new_count", evt.NewCount).
			Time("committed_at", evt.CommittedAt)
		if evt.NewAverage != nil {
			logEvt = logEvt.Float64("new_average", *evt.NewAverage)
		}
		logEvt.Msg("rating committed")
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{"received": received.Load()})
	})

	addr := ":" + *port
	log.Info().Str("addr", addr).Msg("events sink listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
