// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package webapi is the HTTP and websocket front of the regulator. It
// validates requests and hands them to the control loop.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"thermoreg/internal/actuator"
	"thermoreg/internal/control"
	"thermoreg/internal/events"
	"thermoreg/internal/sensor"
	"thermoreg/pkg/eventbus"
	"thermoreg/pkg/logger"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	msgTargetSet     = "Target temperature set successfully"
	msgInvalidTarget = "Invalid target temperature"
)

type Controller interface {
	Apply(ctx context.Context, target float64) (control.Result, error)
	Observe(ctx context.Context, target float64) (control.Result, error)
}

type ActuatorState interface {
	State() actuator.State
}

type Reader interface {
	Read(ctx context.Context) (sensor.Sample, error)
}

// Response is the body of every control route.
type Response struct {
	Status   string   `json:"status"`
	CurrentC *float64 `json:"current_temp,omitempty"`
	TargetC  *float64 `json:"target_temp,omitempty"`
	HeatDuty *float64 `json:"heat_duty,omitempty"`
	CoolDuty *float64 `json:"cool_duty,omitempty"`
	Message  string   `json:"message,omitempty"`
}

type wsRequest struct {
	Command string   `json:"command"`
	Target  *float64 `json:"target,omitempty"`
}

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Service struct {
	loop    Controller
	act     ActuatorState
	reader  Reader
	bus     *eventbus.Bus
	minC    float64
	maxC    float64
	clients *clientSync
	router  *mux.Router
	handler http.Handler
	log     *logger.Logger
}

func New(loop Controller, act ActuatorState, reader Reader, bus *eventbus.Bus) *Service {
	s := &Service{
		loop:   loop,
		act:    act,
		reader: reader,
		bus:    bus,
		minC:   math.Inf(-1),
		maxC:   math.Inf(1),
		log:    logger.New("WebAPI"),
	}
	s.clients = newClientSync(s.log)
	s.router = s.routes()
	s.handler = handlers.LoggingHandler(logger.Writer(),
		handlers.RecoveryHandler(
			handlers.RecoveryLogger(recoveryLog{s.log}),
			handlers.PrintRecoveryStack(true),
		)(s.router))
	return s
}

// WithSetpointRange rejects targets outside [min, max].
func (s *Service) WithSetpointRange(min, max float64) *Service {
	s.minC, s.maxC = min, max
	return s
}

func (s *Service) routes() *mux.Router {
	// all routes on the root router: a subrouter's method mismatch
	// surfaces as 404 instead of 405
	r := mux.NewRouter()
	r.HandleFunc("/api/target", s.handleSetTarget).Methods(http.MethodPost)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/actuators", s.handleActuators).Methods(http.MethodGet)
	r.HandleFunc("/api/reading", s.handleReading).Methods(http.MethodGet)

	// route names used by the original web page
	r.HandleFunc("/set_target_temp", s.handleSetTarget).Methods(http.MethodPost)
	r.HandleFunc("/system_status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.serveWebSockets)
	return r
}

// ServeHTTP serves the routes behind an access log and panic recovery.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type recoveryLog struct{ log *logger.Logger }

func (r recoveryLog) Println(v ...any) {
	r.log.Error("handler panic: %s", strings.TrimSpace(fmt.Sprintln(v...)))
}

// Run forwards control and sample events to websocket clients until ctx
// is done.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped.")
	defer s.clients.closeAll()

	controlEvents, unsubControl := s.bus.Subscribe(ctx, events.TopicControl, true)
	defer unsubControl()
	sampleEvents, unsubSample := s.bus.Subscribe(ctx, events.TopicSample, true)
	defer unsubSample()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-controlEvents:
			if !ok {
				return
			}
			s.clients.broadcastJSON(wsMessage{Type: "control", Data: ev})
		case ev, ok := <-sampleEvents:
			if !ok {
				return
			}
			s.clients.broadcastJSON(wsMessage{Type: "sample", Data: ev})
		}
	}
}

func (s *Service) validTarget(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0) && t >= s.minC && t <= s.maxC
}

func (s *Service) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TargetTemp *float64 `json:"target_temp"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil ||
		body.TargetTemp == nil || !s.validTarget(*body.TargetTemp) {
		writeJSON(w, http.StatusBadRequest, Response{Status: control.Unknown.String(), Message: msgInvalidTarget})
		return
	}

	code, resp := s.apply(r.Context(), *body.TargetTemp)
	writeJSON(w, code, resp)
}

func (s *Service) apply(ctx context.Context, target float64) (int, Response) {
	res, err := s.loop.Apply(ctx, target)
	resp := toResponse(res)
	switch {
	case err == nil:
		resp.Message = msgTargetSet
		return http.StatusOK, resp
	case errors.Is(err, actuator.ErrWriteFailure), errors.Is(err, actuator.ErrConflict):
		resp.Message = err.Error()
		return http.StatusBadGateway, resp
	case errors.Is(err, control.ErrInvalidTarget):
		resp.Message = msgInvalidTarget
		return http.StatusBadRequest, resp
	default:
		resp.Status = control.Unknown.String()
		resp.Message = err.Error()
		return http.StatusServiceUnavailable, resp
	}
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("target_temp")
	target, err := strconv.ParseFloat(raw, 64)
	if raw == "" || err != nil || !s.validTarget(target) {
		writeJSON(w, http.StatusBadRequest, Response{Status: control.Unknown.String(), Message: msgInvalidTarget})
		return
	}
	res, err := s.loop.Observe(r.Context(), target)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Status: control.Unknown.String(), Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

func (s *Service) handleActuators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.act.State())
}

func (s *Service) handleReading(w http.ResponseWriter, r *http.Request) {
	sample, err := s.reader.Read(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        sample.ID,
		"temp":      sample.ValueC,
		"timestamp": sample.CapturedAt,
	})
}

func (s *Service) serveWebSockets(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients
				return true
			}
			if strings.Contains(origin, "localhost") {
				return true
			}
			return strings.Contains(origin, r.Host)
		},
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket: %v", err)
		return
	}
	s.clients.add(ws)
	defer func() {
		s.clients.remove(ws)
		ws.Close()
	}()

	for {
		var req wsRequest
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws read: %v", err)
			}
			return
		}
		if err := s.clients.send(ws, s.handleCommand(r.Context(), req)); err != nil {
			s.log.Debug("ws write: %v", err)
			return
		}
	}
}

func (s *Service) handleCommand(ctx context.Context, req wsRequest) wsMessage {
	switch req.Command {
	case "apply":
		if req.Target == nil || !s.validTarget(*req.Target) {
			return wsMessage{Type: "reply", Data: Response{Status: control.Unknown.String(), Message: msgInvalidTarget}}
		}
		_, resp := s.apply(ctx, *req.Target)
		return wsMessage{Type: "reply", Data: resp}
	case "actuators":
		return wsMessage{Type: "reply", Data: s.act.State()}
	default:
		return wsMessage{Type: "error", Data: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func toResponse(res control.Result) Response {
	target, heat, cool := res.TargetC, res.HeatDuty, res.CoolDuty
	return Response{
		Status:   res.Status.String(),
		CurrentC: res.CurrentC,
		TargetC:  &target,
		HeatDuty: &heat,
		CoolDuty: &cool,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
