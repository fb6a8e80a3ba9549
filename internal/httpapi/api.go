// Package httpapi exposes the authorization engine to HTTP collaborators:
// role CRUD, member listing, role assignment and provisioning. Session and
// invite flows live elsewhere; this layer only consumes engine decisions.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"crewhub.org/internal/authz"
	"crewhub.org/internal/obs"
)

// ReadyProbe checks dependencies for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

// Check pings the database when one is configured.
func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.DB.PingContext(ctx)
}

// Config carries the API's collaborators.
type Config struct {
	Service     *authz.Service
	Engine      *authz.Engine
	Enforcer    *authz.Enforcer
	Provisioner *authz.Provisioner
	Verifier    *TokenVerifier
	Ready       ReadyProbe
	Version     string
}

// API is the HTTP surface over the authorization engine.
type API struct {
	svc      *authz.Service
	engine   *authz.Engine
	enforcer *authz.Enforcer
	prov     *authz.Provisioner
	verifier *TokenVerifier
	ready    ReadyProbe
	version  string
}

// New constructs the API.
func New(cfg Config) (*API, error) {
	if cfg.Service == nil || cfg.Engine == nil || cfg.Enforcer == nil || cfg.Provisioner == nil {
		return nil, errors.New("httpapi: service, engine, enforcer and provisioner are required")
	}
	return &API{
		svc:      cfg.Service,
		engine:   cfg.Engine,
		enforcer: cfg.Enforcer,
		prov:     cfg.Provisioner,
		verifier: cfg.Verifier,
		ready:    cfg.Ready,
		version:  cfg.Version,
	}, nil
}

// Handler builds the routing table wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthz)
	mux.HandleFunc("/readyz", a.readyz)
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/v1/orgs/", a.handleOrgScoped)
	mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	var h http.Handler = mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": a.version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// handleAuthzError maps the error taxonomy to HTTP statuses so callers can
// tell "not allowed" from "not found" from "conflict" without parsing text.
func handleAuthzError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrDuplicateRoleName), errors.Is(err, authz.ErrRoleInUse):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrRoleNotFound), errors.Is(err, authz.ErrMembershipNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, authz.ErrRoleNotEditable),
		errors.Is(err, authz.ErrSystemRoleProtected),
		errors.Is(err, authz.ErrInsufficientAuthority):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "authorization operation failed")
	}
}
