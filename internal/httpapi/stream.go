package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/obs"
	"ghginventory.org/internal/registry"
)

type rulesEvent struct {
	User  registry.User `json:"user"`
	Rules []ruleView    `json:"rules"`
	At    time.Time     `json:"at"`
}

// handleAbilityStream pushes a rule snapshot on connect and again whenever the
// caller's profile changes. The stream ends when the user is removed.
func (a *API) handleAbilityStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	holder := ability.NewHolder(a.auth.AbilityOptions()...)
	user := sess.User
	holder.Update(&user)

	send := func(event string, v any) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	changes := a.hub.Subscribe(ctx, user.ID)
	if !send("rules", rulesEvent{User: user, Rules: rulesView(holder.Load()), At: time.Now().UTC()}) {
		return
	}

	heartbeat := time.NewTicker(a.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case _, open := <-changes:
			if !open {
				return
			}
			fresh, err := a.store.GetUser(ctx, user.ID)
			if err != nil {
				if errors.Is(err, registry.ErrNotFound) {
					holder.Reset()
					send("revoked", map[string]any{"userId": user.ID, "rules": rulesView(holder.Load())})
					return
				}
				obs.Logger().Warn("ability_stream_reload_failed",
					zap.String("request_id", RequestIDFromContext(ctx)),
					zap.Int64("user_id", user.ID),
					zap.Error(err),
				)
				continue
			}
			user = fresh
			holder.Update(&user)
			obs.AbilityRebuilt()
			if !send("rules", rulesEvent{User: user, Rules: rulesView(holder.Load()), At: time.Now().UTC()}) {
				return
			}
		}
	}
}
