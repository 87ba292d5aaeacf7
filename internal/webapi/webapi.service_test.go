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

package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"thermoreg/internal/actuator"
	"thermoreg/internal/control"
	"thermoreg/internal/events"
	"thermoreg/internal/sensor"
	"thermoreg/pkg/eventbus"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	mu    sync.Mutex
	value float64
	err   error
}

func (r *stubReader) set(v float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value, r.err = v, err
}

func (r *stubReader) Read(ctx context.Context) (sensor.Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return sensor.Sample{}, r.err
	}
	return sensor.Sample{ID: "abc", ValueC: r.value, CapturedAt: time.Now()}, nil
}

type stubOutput struct {
	fail error
}

func (o *stubOutput) SetDuty(float64) error { return o.fail }

type fixture struct {
	reader *stubReader
	heat   *stubOutput
	cool   *stubOutput
	driver *actuator.Driver
	bus    *eventbus.Bus
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{reader: &stubReader{}, heat: &stubOutput{}, cool: &stubOutput{}, bus: eventbus.New()}
	t.Cleanup(f.bus.Close)
	f.driver = actuator.NewDriver(f.heat, f.cool)
	loop := control.NewLoop(f.reader, f.driver).WithBus(f.bus)
	f.svc = New(loop, f.driver, f.reader, f.bus).WithSetpointRange(5, 35)
	return f
}

func (f *fixture) do(method, target, body string) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.svc.ServeHTTP(rec, req)
	var resp Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestSetTarget(t *testing.T) {
	f := newFixture(t)
	f.reader.set(18, nil)

	rec, resp := f.do(http.MethodPost, "/api/target", `{"target_temp": 22}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Heating", resp.Status)
	assert.Equal(t, msgTargetSet, resp.Message)
	require.NotNil(t, resp.HeatDuty)
	assert.InDelta(t, 40, *resp.HeatDuty, 1e-9)
	assert.Equal(t, actuator.State{HeatDuty: 40}, f.driver.State())

	// original route name
	f.reader.set(26, nil)
	rec, resp = f.do(http.MethodPost, "/set_target_temp", `{"target_temp": 20}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cooling", resp.Status)
	assert.Equal(t, actuator.State{CoolDuty: 60}, f.driver.State())
}

func TestSetTargetInvalid(t *testing.T) {
	f := newFixture(t)
	f.reader.set(18, nil)
	for _, body := range []string{``, `{}`, `{"target_temp": "warm"}`, `{"target_temp": 80}`, `{"target_temp": -40}`, `not json`} {
		rec, resp := f.do(http.MethodPost, "/api/target", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, msgInvalidTarget, resp.Message, body)
	}
	assert.Equal(t, actuator.State{}, f.driver.State())

	rec, _ := f.do(http.MethodGet, "/api/target", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWrongMethod(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/target"},
		{http.MethodPost, "/api/status"},
		{http.MethodPost, "/api/actuators"},
		{http.MethodDelete, "/api/reading"},
		{http.MethodGet, "/set_target_temp"},
		{http.MethodPost, "/system_status"},
	} {
		rec, _ := f.do(tc.method, tc.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec, _ := f.do(http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetTargetSensorFailure(t *testing.T) {
	f := newFixture(t)
	f.reader.set(0, sensor.ErrDeviceTimeout)

	rec, resp := f.do(http.MethodPost, "/api/target", `{"target_temp": 21}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Unknown", resp.Status)
	assert.Nil(t, resp.CurrentC)
	assert.Contains(t, resp.Message, "not ready")
}

func TestSetTargetActuatorFailure(t *testing.T) {
	f := newFixture(t)
	f.reader.set(18, nil)
	f.cool.fail = errors.New("relay board offline")

	rec, resp := f.do(http.MethodPost, "/api/target", `{"target_temp": 22}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, resp.Message, "control not applied")
	assert.Equal(t, actuator.State{}, f.driver.State())
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.reader.set(21, nil)

	rec, resp := f.do(http.MethodGet, "/api/status?target_temp=21", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Idle", resp.Status)
	require.NotNil(t, resp.CurrentC)
	assert.InDelta(t, 21, *resp.CurrentC, 1e-9)

	rec, resp = f.do(http.MethodGet, "/system_status?target_temp=25", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Heating", resp.Status)
	assert.Equal(t, actuator.State{}, f.driver.State(), "status never actuates")

	rec, resp = f.do(http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown", resp.Status)

	f.reader.set(0, sensor.ErrDeviceUnavailable)
	rec, resp = f.do(http.MethodGet, "/api/status?target_temp=21", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown", resp.Status)
}

func TestActuatorsAndReading(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.driver.Command(0, 25))

	rec, _ := f.do(http.MethodGet, "/api/actuators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"heat_duty":0,"cool_duty":25}`, rec.Body.String())

	f.reader.set(19.5, nil)
	rec, _ = f.do(http.MethodGet, "/api/reading", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 19.5, body["temp"])

	f.reader.set(0, sensor.ErrMalformedFrame)
	rec, _ = f.do(http.MethodGet, "/api/reading", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebSocket(t *testing.T) {
	f := newFixture(t)
	f.reader.set(18, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.svc.Run(ctx)

	srv := httptest.NewServer(f.svc)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return f.svc.clients.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, ws.WriteJSON(map[string]any{"command": "apply", "target": 22}))

	// one reply plus the control broadcast, in either order
	var sawReply, sawControl bool
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !(sawReply && sawControl) {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&msg))
		switch msg.Type {
		case "reply":
			var resp Response
			require.NoError(t, json.Unmarshal(msg.Data, &resp))
			assert.Equal(t, "Heating", resp.Status)
			sawReply = true
		case "control":
			var ev events.ControlUpdate
			require.NoError(t, json.Unmarshal(msg.Data, &ev))
			assert.True(t, ev.Applied)
			sawControl = true
		}
	}

	require.NoError(t, ws.WriteJSON(map[string]any{"command": "bogus"}))
	var msg wsMessage
	require.NoError(t, ws.ReadJSON(&msg))
	for msg.Type != "error" {
		require.NoError(t, ws.ReadJSON(&msg))
	}
	assert.Contains(t, msg.Data, "bogus")
}

func TestRecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.svc.router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec, _ := f.do(http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
