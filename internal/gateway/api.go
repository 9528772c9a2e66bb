package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/flemzord/coauthor/internal/assist"
)

// failureResponse is the body of every in-band failure. Failures are
// answered with HTTP 200 so the editor shows the message.
type failureResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

type queryResponse struct {
	Status bool `json:"status"`
	assist.QueryResult
}

type getLogResponse struct {
	Status bool `json:"status"`
	assist.LogResult
}

// handleStartSession returns an http.HandlerFunc for POST /api/start_session.
func (g *Gateway) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assist.StartRequest
		if !g.decode(w, r, &req) {
			return
		}
		req.ClientAddr = clientAddr(r)

		res, err := g.assist.StartSession(r.Context(), req)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		fields := res.Fields()
		fields["status"] = true
		writeJSON(w, http.StatusOK, fields)
	}
}

// handleEndSession returns an http.HandlerFunc for POST /api/end_session.
// A log that could not be saved is reported in the result, not as a
// failure, so the writer still gets a verification code.
func (g *Gateway) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assist.EndRequest
		if !g.decode(w, r, &req) {
			return
		}
		res := g.assist.EndSession(r.Context(), req)
		if !res.Saved {
			g.metrics.RecordFailure(routePattern(r))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleQuery returns an http.HandlerFunc for POST /api/query.
func (g *Gateway) handleQuery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assist.QueryRequest
		if !g.decode(w, r, &req) {
			return
		}
		res, err := g.assist.Query(r.Context(), req)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, queryResponse{Status: true, QueryResult: res})
	}
}

// handleGetLog returns an http.HandlerFunc for POST /api/get_log.
func (g *Gateway) handleGetLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assist.GetLogRequest
		if !g.decode(w, r, &req) {
			return
		}
		res, err := g.assist.GetLog(r.Context(), req)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, getLogResponse{Status: true, LogResult: res})
	}
}

// decode reads and validates a JSON request body into dst. On error it
// answers with a failure and returns false.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		g.failWith(w, r, "Invalid request: "+err.Error(), err)
		return false
	}
	if err := g.validate.Struct(dst); err != nil {
		g.failWith(w, r, validationMessage(err), err)
		return false
	}
	return true
}

// fail answers with an in-band failure. The message of an assist.Failure
// is shown as is; other errors show their text.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	msg := err.Error()
	var f *assist.Failure
	if errors.As(err, &f) {
		msg = f.Message
	}
	g.failWith(w, r, msg, err)
}

func (g *Gateway) failWith(w http.ResponseWriter, r *http.Request, msg string, err error) {
	g.metrics.RecordFailure(routePattern(r))
	g.logger.Debug("request failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusOK, failureResponse{Status: false, Message: msg})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request: " + err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return "Invalid request: " + strings.Join(parts, "; ")
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
