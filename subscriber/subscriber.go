// Package subscriber consumes gateway messages from the broker, stores the
// readings and serves per-user exports.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/mux"

	"i4.energy/across/nbiotgw/payload"
	"i4.energy/across/nbiotgw/store"
)

// ErrInvalidUser is returned for a user id that cannot name an export file.
var ErrInvalidUser = errors.New("invalid user id")

// Handler routes one message either into the store or, for the download
// topic, into an export file.
type Handler struct {
	store  *store.Store
	prefix string
	dir    string
	log    *slog.Logger
}

// NewHandler serves messages below prefix and writes exports to dir.
func NewHandler(s *store.Store, prefix, dir string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{store: s, prefix: prefix, dir: dir, log: log}
}

// Handle processes the message body received on topic.
func (h *Handler) Handle(ctx context.Context, topic string, body []byte, received time.Time) error {
	if topic == h.prefix+payload.DownloadTopic {
		user, sensor, err := payload.DecodeDownload(string(body))
		if err != nil {
			return err
		}
		return h.export(ctx, user, sensor)
	}

	user, records, err := payload.Decode(string(body))
	if err != nil {
		return err
	}
	n, err := h.store.Add(ctx, user, records, received)
	if err != nil {
		return err
	}
	h.log.Info("Readings stored", "topic", topic, "user", user, "records", len(records), "readings", n)
	return nil
}

// ExportPath returns the file the export of user is written to.
func (h *Handler) ExportPath(user string) (string, error) {
	return exportPath(h.dir, user)
}

func exportPath(dir, user string) (string, error) {
	if user == "" || user == "." || user == ".." || strings.ContainsAny(user, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUser, user)
	}
	return filepath.Join(dir, user+".csv"), nil
}

func (h *Handler) export(ctx context.Context, user, sensor string) error {
	path, err := h.ExportPath(user)
	if err != nil {
		return err
	}
	if sensor == "" {
		sensor = store.AllSensors
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(h.dir, "."+user+"-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := h.store.Export(ctx, user, sensor, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", user, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	h.log.Info("Export written", "user", user, "sensor", sensor, "readings", n, "path", path)
	return nil
}

// MessageHandler adapts Handle to a paho subscription callback. Errors are
// logged; a message is never redelivered.
func (h *Handler) MessageHandler(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := h.Handle(ctx, msg.Topic(), msg.Payload(), time.Now()); err != nil {
			h.log.Error("Failed to handle message", "topic", msg.Topic(), "error", err)
		}
	}
}

// Router serves the exports in dir at GET /{user}.csv.
func Router(dir string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/{user}.csv", func(w http.ResponseWriter, req *http.Request) {
		user := mux.Vars(req)["user"]
		path, err := exportPath(dir, user)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, err := os.Open(path)
		if err != nil {
			http.NotFound(w, req)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		http.ServeContent(w, req, filepath.Base(path), info.ModTime(), f)
	}).Methods(http.MethodGet)
	return r
}
