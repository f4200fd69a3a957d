package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cartline/shipping/internal/shipping"
	"github.com/cartline/shipping/internal/webhook"
	"github.com/cartline/shipping/pkg/carrier"
	"github.com/go-chi/chi/v5"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// response is the JSON envelope every endpoint answers with.
type response map[string]any

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	var req carrier.RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, carrier.NewError(carrier.KindValidation, "invalid JSON body").WithCause(err))
		return
	}

	rates, err := s.service.Quote(r.Context(), &req)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{"success": true, "rates": rates})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in shipping.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, s.logger, carrier.NewError(carrier.KindValidation, "invalid JSON body").WithCause(err))
		return
	}

	rec, created, err := s.service.CreateShipment(r.Context(), in)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusBadRequest, response{
			"success":  false,
			"message":  "Shipment already exists for this order",
			"shipment": rec,
		})
		return
	}

	writeJSON(w, http.StatusCreated, response{
		"success":  true,
		"message":  "Shipment created successfully",
		"shipment": rec,
	})
}

func (s *Server) handleCreateFromOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	// Body is optional; only the force flag is read from it.
	var body struct {
		ForceRetry bool `json:"forceRetry"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	rec, ord, created, err := s.service.CreateFromOrder(r.Context(), orderID, body.ForceRetry)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusBadRequest, response{
			"success":  false,
			"message":  "Shipment already exists for this order",
			"shipment": rec,
		})
		return
	}

	writeJSON(w, http.StatusOK, response{
		"success":  true,
		"message":  "Shipment created successfully",
		"shipment": rec,
		"order": response{
			"id":      ord.ID,
			"invoice": ord.Invoice,
			"status":  ord.Status,
		},
	})
}

func (s *Server) handleOrderTracking(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	view, err := s.service.RefreshTracking(r.Context(), orderID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		"success":  true,
		"tracking": view,
		"source":   view.Source,
	})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	info, err := s.service.Track(r.Context(), trackingID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		"success":  true,
		"tracking": json.RawMessage(info.Raw),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if err := s.service.Cancel(r.Context(), orderID); err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		"success": true,
		"message": "Shipment cancelled successfully",
	})
}

func (s *Server) handlePostageTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.service.PostageTypes(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		"success":      true,
		"postageTypes": types,
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("X-Stallion-Signature")
	if signature == "" {
		signature = r.Header.Get("Stallion-Signature")
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, s.logger, carrier.NewError(carrier.KindValidation, "unreadable body").WithCause(err))
		return
	}

	var envelope struct {
		Event string          `json:"event"`
		Data  webhook.Payload `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		writeError(w, s.logger, carrier.NewError(carrier.KindValidation, "invalid JSON body").WithCause(err))
		return
	}

	result := s.ingestor.Ingest(r.Context(), signature, rawBody, envelope.Event, envelope.Data)
	if result == webhook.ResultRejected {
		writeJSON(w, http.StatusUnauthorized, response{
			"success": false,
			"message": "Invalid webhook signature",
		})
		return
	}

	// Always acknowledged once the signature passes; a failure is in the
	// dead-letter store, and a retry from the carrier would not help.
	writeJSON(w, http.StatusOK, response{"success": true, "received": true})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	cfg := s.provider.Resolve(r.Context())

	writeJSON(w, http.StatusOK, response{
		"success": true,
		"stallion": response{
			"enabled":      cfg.Enabled,
			"baseURL":      cfg.BaseURL,
			"apiKeyMasked": maskKey(cfg.APIKey),
		},
	})
}

// maskKey keeps the last four characters of a credential for verification.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "*****"
	}
	return "*****" + key[len(key)-4:]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the carrier error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is a persistence or programming failure and
// surfaces as a 500.
func writeError(w http.ResponseWriter, logger *otelzap.Logger, err error) {
	var ce *carrier.Error
	if !errors.As(err, &ce) {
		logger.Error("Internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, response{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	status := http.StatusBadRequest
	switch ce.Kind {
	case carrier.KindNotFound:
		status = http.StatusNotFound
	case carrier.KindUnreachable:
		status = http.StatusBadGateway
	}

	body := response{"success": false, "message": ce.Message}
	if len(ce.Remote) > 0 {
		body["details"] = ce.Remote
	}
	writeJSON(w, status, body)
}
