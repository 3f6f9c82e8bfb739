package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/counterbalance/internal/balancer"
	"github.com/roach88/counterbalance/internal/ident"
)

const msgMissingIDs = "Missing subject or session id"

// maxBodyBytes caps the confirm request body.
const maxBodyBytes = 4 << 10

type assignResponse struct {
	Condition int `json:"condition"`
}

type confirmRequest struct {
	ProlificPID flexID `json:"prolific_pid"`
	SessionID   flexID `json:"session_id"`
}

type confirmResponse struct {
	Status    string `json:"status"`
	Condition int    `json:"condition"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Kind        string `json:"kind,omitempty"`
	Participant string `json:"participant,omitempty"`
	Session     string `json:"session,omitempty"`
}

// flexID accepts a JSON string or number. Recruitment platforms send
// participant ids both ways.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	participant, session := q.Get("prolific_pid"), q.Get("session_id")
	if blank(participant) || blank(session) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgMissingIDs})
		return
	}

	condition, err := s.balancer.Assign(r.Context(), participant, session)
	if err != nil {
		writeBalancerError(w, err, participant, session)
		return
	}
	writeJSON(w, http.StatusOK, assignResponse{Condition: condition})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	participant, session := string(req.ProlificPID), string(req.SessionID)
	if blank(participant) || blank(session) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgMissingIDs})
		return
	}

	condition, err := s.balancer.Confirm(r.Context(), participant, session)
	if err != nil {
		writeBalancerError(w, err, participant, session)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Status: "success", Condition: condition})
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	session, err := ident.Normalize("session", chi.URLParam(r, "session"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: err.Error(),
			Kind:  string(balancer.KindInvalidIdentifier),
		})
		return
	}

	summary, err := s.reporter.Summary(r.Context(), session)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   err.Error(),
			Kind:    string(balancer.KindStoreError),
			Session: session,
		})
		return
	}
	if len(summary.Counters) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error:   "session not initialized",
			Kind:    string(balancer.KindNotFound),
			Session: session,
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// statusFor maps a balancer error to an HTTP status.
func statusFor(err error) int {
	switch balancer.KindOf(err) {
	case balancer.KindNotFound:
		return http.StatusNotFound
	case balancer.KindAlreadyCompleted:
		return http.StatusConflict
	case balancer.KindInvalidIdentifier:
		return http.StatusBadRequest
	case balancer.KindStoreBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeBalancerError(w http.ResponseWriter, err error, participant, session string) {
	resp := errorResponse{
		Error:       err.Error(),
		Kind:        string(balancer.KindOf(err)),
		Participant: participant,
		Session:     session,
	}
	var be *balancer.Error
	if errors.As(err, &be) {
		resp.Participant, resp.Session = be.Participant, be.Session
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
