package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-notification-bridge/internal/appstate"
	"github.com/tinywideclouds/go-notification-bridge/internal/pipeline"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Bridge is the set of bridge operations exposed over HTTP.
// *pipeline.Bridge satisfies it.
type Bridge interface {
	Ready(ctx context.Context) error
	RegisterToken(ctx context.Context, token string) error
	Constants() map[string]value.Value
	Delivered(ctx context.Context) ([]value.Value, error)
	Open(ctx context.Context, envelope value.Value) error
	Dismiss(ctx context.Context, envelope value.Value) error
	HandleAction(ctx context.Context, action string, envelope value.Value) error
	RegisterActions(targets map[string]string)
	Replay(ctx context.Context) (int, error)
	RegisterChannels(ctx context.Context, channels value.Value) (int, error)
	SetBadge(ctx context.Context, count int) error
	FormatPayload(payload value.Value) (value.Value, bool, error)
}

// StateReporter receives application lifecycle reports.
type StateReporter interface {
	Report(state appstate.State)
}

type BridgeAPI struct {
	Bridge Bridge
	State  StateReporter
	Logger *slog.Logger
}

func NewBridgeAPI(bridge Bridge, state StateReporter, logger *slog.Logger) *BridgeAPI {
	return &BridgeAPI{
		Bridge: bridge,
		State:  state,
		Logger: logger.With("component", "BridgeAPI"),
	}
}

// authorized rejects requests the auth middleware did not attach a user to.
func (api *BridgeAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := middleware.GetUserHandleFromContext(r.Context()); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

// --- Application lifecycle ---

func (api *BridgeAPI) Ready(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	if err := api.Bridge.Ready(r.Context()); err != nil {
		api.Logger.Error("failed to flush pending events", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to deliver pending events")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AppStateRequest struct {
	State string `json:"state"`
}

func (api *BridgeAPI) AppState(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	var req AppStateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	state, err := appstate.ParseState(req.State)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	api.State.Report(state)
	w.WriteHeader(http.StatusNoContent)
}

type RegisterTokenRequest struct {
	Token string `json:"token"`
}

func (api *BridgeAPI) RegisterToken(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	var req RegisterTokenRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}
	if err := api.Bridge.RegisterToken(r.Context(), req.Token); err != nil {
		api.Logger.Error("failed to register token", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *BridgeAPI) Constants(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	api.writeJSON(w, http.StatusOK, value.OfMap(api.Bridge.Constants()))
}

// --- Notifications ---

func (api *BridgeAPI) Delivered(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	delivered, err := api.Bridge.Delivered(r.Context())
	if err != nil {
		api.Logger.Error("failed to list delivered notifications", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.writeJSON(w, http.StatusOK, value.OfList(delivered...))
}

func (api *BridgeAPI) Open(w http.ResponseWriter, r *http.Request) {
	api.withEnvelope(w, r, func(ctx context.Context, envelope value.Value) error {
		return api.Bridge.Open(ctx, envelope)
	})
}

func (api *BridgeAPI) Dismiss(w http.ResponseWriter, r *http.Request) {
	api.withEnvelope(w, r, func(ctx context.Context, envelope value.Value) error {
		return api.Bridge.Dismiss(ctx, envelope)
	})
}

func (api *BridgeAPI) HandleAction(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	action := r.PathValue("action")
	if action == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing action")
		return
	}
	api.serveEnvelope(w, r, func(ctx context.Context, envelope value.Value) error {
		return api.Bridge.HandleAction(ctx, action, envelope)
	})
}

func (api *BridgeAPI) RegisterActions(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	var targets map[string]string
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&targets); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	api.Bridge.RegisterActions(targets)
	w.WriteHeader(http.StatusNoContent)
}

func (api *BridgeAPI) Replay(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	n, err := api.Bridge.Replay(r.Context())
	if err != nil {
		api.Logger.Error("failed to replay delivered notifications", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "replay failed")
		return
	}
	api.writeJSON(w, http.StatusOK, value.OfMap(map[string]value.Value{"replayed": value.OfInt(int64(n))}))
}

// --- Platform ---

func (api *BridgeAPI) RegisterChannels(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	channels, ok := api.readValue(w, r)
	if !ok {
		return
	}
	n, err := api.Bridge.RegisterChannels(r.Context(), channels)
	if err != nil {
		api.Logger.Warn("failed to register channels", "registered", n, "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	api.writeJSON(w, http.StatusOK, value.OfMap(map[string]value.Value{"registered": value.OfInt(int64(n))}))
}

type BadgeRequest struct {
	Count *int `json:"count"`
}

func (api *BridgeAPI) SetBadge(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	var req BadgeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Count == nil {
		response.WriteJSONError(w, http.StatusBadRequest, "missing count")
		return
	}
	if err := api.Bridge.SetBadge(r.Context(), *req.Count); err != nil {
		api.Logger.Error("failed to set badge", "err", err)
		response.WriteJSONError(w, http.StatusBadGateway, "platform rejected badge update")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *BridgeAPI) FormatPayload(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	payload, ok := api.readValue(w, r)
	if !ok {
		return
	}
	formatted, handled, err := api.Bridge.FormatPayload(payload)
	if err != nil {
		api.Logger.Warn("payload formatter failed", "err", err)
		response.WriteJSONError(w, http.StatusUnprocessableEntity, "formatter failed")
		return
	}
	api.writeJSON(w, http.StatusOK, value.OfMap(map[string]value.Value{
		"payload":   formatted,
		"canHandle": value.OfBool(handled),
	}))
}

// --- Helpers ---

func (api *BridgeAPI) withEnvelope(w http.ResponseWriter, r *http.Request, handle func(context.Context, value.Value) error) {
	if !api.authorized(w, r) {
		return
	}
	api.serveEnvelope(w, r, handle)
}

// serveEnvelope assumes the caller is already authorized.
func (api *BridgeAPI) serveEnvelope(w http.ResponseWriter, r *http.Request, handle func(context.Context, value.Value) error) {
	envelope, ok := api.readValue(w, r)
	if !ok {
		return
	}
	err := handle(r.Context(), envelope)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, pipeline.ErrUnregisteredAction):
		response.WriteJSONError(w, http.StatusNotFound, err.Error())
	default:
		api.Logger.Warn("rejected notification envelope", "path", r.URL.Path, "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid notification payload")
	}
}

func (api *BridgeAPI) readValue(w http.ResponseWriter, r *http.Request) (value.Value, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "unreadable body")
		return value.Value{}, false
	}
	v, err := value.FromText(string(body))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return value.Value{}, false
	}
	return v, true
}

func (api *BridgeAPI) writeJSON(w http.ResponseWriter, status int, v value.Value) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.Logger.Warn("failed to write response", "err", err)
	}
}
