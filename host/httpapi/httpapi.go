// Package httpapi exposes a board, simulated or remote, over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"wavedma/core"
)

// Controller is what the routes drive. sim.Bench and mcu.Device both
// satisfy it.
type Controller interface {
	Status() (core.Status, error)
	Snapshot() (core.Snapshot, error)
	Start() error
	Stop() error
	Table() ([]uint16, error)
}

// History serves recorded snapshots, newest first.
type History interface {
	Recent(n int) ([]core.Snapshot, error)
}

// StatusView is the JSON form of core.Status.
type StatusView struct {
	Running bool   `json:"running"`
	Channel string `json:"channel"`
	Timer   string `json:"timer"`
	Errors  uint32 `json:"transfer_errors"`
}

// SnapshotView is the JSON form of core.Snapshot.
type SnapshotView struct {
	Tick          uint32    `json:"tick"`
	PSC           uint32    `json:"psc"`
	ARR           uint32    `json:"arr"`
	RCR           uint32    `json:"rcr"`
	CCR           [4]uint32 `json:"ccr"`
	Remaining     uint32    `json:"remaining"`
	Channel       string    `json:"channel"`
	Timer         string    `json:"timer"`
	Errors        uint32    `json:"transfer_errors"`
	ADCRaw        uint16    `json:"adc_raw"`
	ADCMilliVolts uint32    `json:"adc_mv"`
}

func statusView(s core.Status) StatusView {
	return StatusView{Running: s.Running, Channel: s.Channel.String(), Timer: s.Timer.String(), Errors: s.Errors}
}

func snapshotView(s core.Snapshot) SnapshotView {
	return SnapshotView{
		Tick: s.Tick, PSC: s.PSC, ARR: s.ARR, RCR: s.RCR, CCR: s.CCR,
		Remaining: s.Remaining, Channel: s.Channel.String(), Timer: s.Timer.String(),
		Errors: s.TransferErrors, ADCRaw: s.ADCRaw, ADCMilliVolts: s.ADCMilliVolts,
	}
}

// SetupHTTP creates a router with the board routes.
func SetupHTTP(c Controller, h History) chi.Router {
	r := chi.NewRouter()
	r.Get("/status", GetStatus(c))
	r.Get("/snapshot", GetSnapshot(c))
	r.Get("/table", GetTable(c))
	r.Post("/start", Do(c.Start))
	r.Post("/stop", Do(c.Stop))
	if h != nil {
		r.Get("/history", GetHistory(h))
	}
	return r
}

func respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, errors.ErrUnsupported) {
		code = http.StatusNotImplemented
	}
	http.Error(w, err.Error(), code)
}

// GetStatus returns the board state as JSON.
func GetStatus(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := c.Status()
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, statusView(s))
	}
}

// GetSnapshot returns a fresh diagnostic snapshot as JSON.
func GetSnapshot(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := c.Snapshot()
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, snapshotView(s))
	}
}

// GetTable returns the duty table as {"stride": n, "values": [...]}.
func GetTable(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := c.Table()
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, struct {
			Len    int      `json:"len"`
			Values []uint16 `json:"values"`
		}{len(v), v})
	}
}

// Do calls fn and answers 200 on success.
func Do(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetHistory returns recorded snapshots; ?n= limits the count (default 20).
func GetHistory(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := 20
		if q := r.URL.Query().Get("n"); q != "" {
			v, err := strconv.Atoi(q)
			if err != nil || v <= 0 {
				http.Error(w, "n must be a positive integer", http.StatusBadRequest)
				return
			}
			n = v
		}
		snaps, err := h.Recent(n)
		if err != nil {
			fail(w, err)
			return
		}
		out := make([]SnapshotView, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, snapshotView(s))
		}
		respond(w, out)
	}
}
