package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
)

const defaultSpinLimit = 50

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.client.Status())
}

// handleNetworks handles GET /api/v1/networks
func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	nets := s.client.Networks()
	writeJSON(w, http.StatusOK, QueryResponse{Data: nets, Count: len(nets)})
}

// handleSwitchNetwork handles POST /api/v1/network
func (s *Server) handleSwitchNetwork(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Network == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "network is required"})
		return
	}

	result, err := s.client.SwitchNetwork(r.Context(), req.Network)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if result.ConfirmationRequired {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// handleConfirmNetwork handles POST /api/v1/network/confirm
func (s *Server) handleConfirmNetwork(w http.ResponseWriter, r *http.Request) {
	if err := s.client.ConfirmNetworkSwitch(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.client.Status())
}

// handleSetup handles POST /api/v1/setup
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Setup(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.client.Status())
}

// handleDisconnect handles POST /api/v1/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.client.Disconnect()
	writeJSON(w, http.StatusOK, s.client.Status())
}

// handleSpins handles GET /api/v1/spins?limit=<n>&network=<key>
func (s *Server) handleSpins(w http.ResponseWriter, r *http.Request) {
	limit := defaultSpinLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := s.client.RecentSpins(r.URL.Query().Get("network"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Data: records, Count: len(records)})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var spinErr *spinerrors.SpinError
	if spinerrors.As(err, &spinErr) {
		resp.Error = spinErr.Message
		resp.Code = string(spinErr.Code)
		resp.Reason = string(spinErr.Reason)
		switch spinErr.Code {
		case spinerrors.ErrCodeConfig, spinerrors.ErrCodeValidation:
			status = http.StatusBadRequest
		case spinerrors.ErrCodeSetup:
			status = http.StatusConflict
		case spinerrors.ErrCodeNetwork:
			status = http.StatusBadGateway
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
