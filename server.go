package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"i4.energy/across/nbiotgw/messaging"
	"i4.energy/across/nbiotgw/modem"
	"i4.energy/across/nbiotgw/payload"
	"i4.energy/across/nbiotgw/sensor"
)

// Server handles incoming HTTP requests and forwards sensor records over the
// configured uplink
type Server struct {
	Logger    *slog.Logger
	Messenger *messaging.Messenger
	Fetcher   messaging.Fetcher
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /records", s.handleRecords)
	mux.HandleFunc("GET /download", s.handleDownload)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)

}

// RecordRequest is one record of a POST /records body. Timestamp, when set,
// is shared by all readings; otherwise every reading carries its own.
type RecordRequest struct {
	Sensor    string           `json:"sensor"`
	Readings  []sensor.Reading `json:"readings"`
	Timestamp string           `json:"timestamp,omitempty"`
}

func (rr RecordRequest) record() (*payload.Record, error) {
	if rr.Sensor == "" {
		return nil, errors.New("'sensor' field is required")
	}
	if rr.Timestamp == "" {
		for _, rd := range rr.Readings {
			if rd.Timestamp == "" {
				return nil, errors.New(rr.Sensor + ": every reading needs a timestamp when no shared 'timestamp' is given")
			}
		}
		return sensor.Record(rr.Sensor, rr.Readings...)
	}

	values := make([]float64, len(rr.Readings))
	for i, rd := range rr.Readings {
		values[i] = rd.Value
	}
	return payload.NewRecord(rr.Sensor, values, rr.Timestamp)
}

// handleRecords publishes the posted records as one message
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	type RecordsRequest struct {
		Records []RecordRequest `json:"records"`
	}

	var req RecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		s.sendError(w, "'records' must not be empty", http.StatusBadRequest)
		return
	}

	records := make([]*payload.Record, 0, len(req.Records))
	for _, rr := range req.Records {
		rec, err := rr.record()
		if err != nil {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		records = append(records, rec)
	}

	if err := s.Messenger.Send(r.Context(), records...); err != nil {
		s.Logger.Error("Failed to send records", "error", err, "records", len(records))
		status := http.StatusInternalServerError
		if errors.Is(err, modem.ErrPayloadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.sendError(w, err.Error(), status)
		return
	}

	s.Logger.Info("Records sent successfully", "records", len(records), "topic", payload.Topic(s.Messenger.Prefix(), records...))
	w.WriteHeader(http.StatusOK)
}

// handleDownload requests an export and returns it
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sensorName := r.URL.Query().Get("sensor")
	if sensorName == "" {
		sensorName = messaging.DownloadAll
	}

	var buf bytes.Buffer
	if err := s.Messenger.Download(r.Context(), sensorName, s.Fetcher, &buf); err != nil {
		s.Logger.Error("Failed to download export", "error", err, "sensor", sensorName)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
