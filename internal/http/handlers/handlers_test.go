// README: Handler tests for request parsing, authorization and error mapping.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"dispatch/internal/apperr"
	"dispatch/internal/http/handlers"
	"dispatch/internal/http/middleware"
	"dispatch/internal/infra"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/trip"
	"dispatch/internal/types"
)

type fakeTrips struct {
	createCmd trip.CreateCommand
	acceptCmd trip.AcceptCommand
	current   *trip.Trip
	calls     int
	writes    int
	err       error
}

func (f *fakeTrips) Create(_ context.Context, cmd trip.CreateCommand) (*trip.CreateResult, error) {
	f.calls++
	f.createCmd = cmd
	if f.err != nil {
		return nil, f.err
	}
	return &trip.CreateResult{
		Trip:       &trip.Trip{ID: "t1", Status: trip.StatusPending, CustomerID: cmd.CustomerID, Price: trip.BasePrice},
		Candidates: []matching.Candidate{{DriverID: "d1", Name: "Ana", VehicleClass: cmd.VehicleClass, DistanceMeters: 42}},
	}, nil
}

func (f *fakeTrips) Accept(_ context.Context, cmd trip.AcceptCommand) (*trip.Trip, error) {
	f.calls++
	f.acceptCmd = cmd
	if f.err != nil {
		return nil, f.err
	}
	return &trip.Trip{ID: cmd.TripID, Status: trip.StatusOngoing, DriverID: cmd.DriverID.Ptr()}, nil
}

func (f *fakeTrips) Get(_ context.Context, id types.ID) (*trip.Trip, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.current != nil {
		return f.current, nil
	}
	return &trip.Trip{ID: id, Status: trip.StatusPending}, nil
}

func (f *fakeTrips) Candidates(_ context.Context, _ types.ID) ([]matching.CachedCandidate, error) {
	f.calls++
	return []matching.CachedCandidate{}, f.err
}

func (f *fakeTrips) Complete(_ context.Context, cmd trip.CompleteCommand) (*trip.Trip, error) {
	f.calls++
	f.writes++
	return &trip.Trip{ID: cmd.TripID, Status: trip.StatusCompleted}, f.err
}

func (f *fakeTrips) Cancel(_ context.Context, cmd trip.CancelCommand) (*trip.Trip, error) {
	f.calls++
	f.writes++
	return &trip.Trip{ID: cmd.TripID, Status: trip.StatusCancelled}, f.err
}

type fakeDrivers struct {
	statusCmd driver.SetAvailabilityCommand
	calls     int
	err       error
}

func (f *fakeDrivers) Get(_ context.Context, id types.ID) (*driver.Driver, error) {
	f.calls++
	return &driver.Driver{ID: id, Status: driver.StatusAvailable}, f.err
}

func (f *fakeDrivers) UpdateLocation(_ context.Context, cmd driver.UpdateLocationCommand) (*driver.Driver, error) {
	f.calls++
	return &driver.Driver{ID: cmd.DriverID, Location: cmd.Location}, f.err
}

func (f *fakeDrivers) SetAvailability(_ context.Context, cmd driver.SetAvailabilityCommand) (*driver.Driver, error) {
	f.calls++
	f.statusCmd = cmd
	if f.err != nil {
		return nil, f.err
	}
	return &driver.Driver{ID: cmd.DriverID, Status: cmd.Status}, nil
}

type stubVerifier struct {
	uid string
}

func (s stubVerifier) VerifyIDToken(context.Context, string) (*infra.CallerToken, error) {
	return &infra.CallerToken{UID: s.uid}, nil
}

func buildRouter(trips handlers.TripService, drivers handlers.DriverService, verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if verifier != nil {
		r.Use(middleware.Auth(verifier))
	}
	th := handlers.NewTripHandler(trips)
	r.POST("/trips", th.Create)
	r.GET("/trips/:id", th.Get)
	r.GET("/trips/:id/candidates", th.Candidates)
	r.POST("/trips/:id/accept", th.Accept)
	r.POST("/trips/:id/complete", th.Complete)
	r.POST("/trips/:id/cancel", th.Cancel)
	dh := handlers.NewDriverHandler(drivers)
	r.GET("/drivers/:id", dh.Get)
	r.PUT("/drivers/:id/location", dh.UpdateLocation)
	r.PUT("/drivers/:id/status", dh.SetStatus)
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const createBody = `{"customer_id":"c1","pickup":[121.565,25.033],"dropoff":[121.517,25.047],"vehicle_type":"Sedan"}`

func TestCreateTrip(t *testing.T) {
	trips := &fakeTrips{}
	r := buildRouter(trips, &fakeDrivers{}, nil)

	w := doRequest(r, http.MethodPost, "/trips", createBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if trips.createCmd.Pickup != (types.Point{Lng: 121.565, Lat: 25.033}) || trips.createCmd.VehicleClass != "Sedan" {
		t.Fatalf("unexpected command: %+v", trips.createCmd)
	}

	var resp struct {
		Trip struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"trip"`
		Candidates []struct {
			ID          string  `json:"id"`
			VehicleType string  `json:"vehicle_type"`
			DistanceM   float64 `json:"distance_m"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Trip.Status != "pending" || len(resp.Candidates) != 1 || resp.Candidates[0].ID != "d1" {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}
}

func TestCreateTripRejectsBadInput(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"customer_id":"c1","pickup":[121.5],"dropoff":[121.5,25.0],"vehicle_type":"Sedan"}`,
		`{"customer_id":"c1","pickup":[200,25.0],"dropoff":[121.5,25.0],"vehicle_type":"Sedan"}`,
		`{"customer_id":"c1","dropoff":[121.5,25.0],"vehicle_type":"Sedan"}`,
		`{"pickup":[121.5,25.0],"dropoff":[121.5,25.0],"vehicle_type":"Sedan"}`,
	}
	for i, body := range bodies {
		trips := &fakeTrips{}
		r := buildRouter(trips, &fakeDrivers{}, nil)
		w := doRequest(r, http.MethodPost, "/trips", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("case %d: expected 400, got %d", i, w.Code)
		}
		if trips.calls != 0 {
			t.Errorf("case %d: service should not be called", i)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.ErrTripNotFound, http.StatusNotFound},
		{apperr.ErrDriverNotFound, http.StatusNotFound},
		{apperr.ErrNoDriversAvailable, http.StatusNotFound},
		{apperr.ErrDriverNotAvailable, http.StatusConflict},
		{apperr.ErrTripNotPending, http.StatusConflict},
		{fmt.Errorf("lock driver: %w", apperr.ErrLockTimeout), http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := buildRouter(&fakeTrips{err: tt.err}, &fakeDrivers{}, nil)
		w := doRequest(r, http.MethodPost, "/trips/t1/accept", `{"driver_id":"d1"}`)
		if w.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, w.Code)
		}
	}
}

func TestStoreErrorBodyIsOpaque(t *testing.T) {
	r := buildRouter(&fakeTrips{err: errors.New("pq: password authentication failed")}, &fakeDrivers{}, nil)
	w := doRequest(r, http.MethodGet, "/trips/t1", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Fatalf("store detail leaked: %s", w.Body.String())
	}
}

func TestAcceptTrip(t *testing.T) {
	trips := &fakeTrips{}
	r := buildRouter(trips, &fakeDrivers{}, nil)

	w := doRequest(r, http.MethodPost, "/trips/t1/accept", `{"driver_id":"d1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if trips.acceptCmd != (trip.AcceptCommand{TripID: "t1", DriverID: "d1"}) {
		t.Fatalf("unexpected command: %+v", trips.acceptCmd)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"status":"ongoing"`)) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	w = doRequest(r, http.MethodPost, "/trips/t1/accept", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without driver_id, got %d", w.Code)
	}
}

func TestAuthenticatedCallerMustMatchSubject(t *testing.T) {
	trips := &fakeTrips{}
	drivers := &fakeDrivers{}
	r := buildRouter(trips, drivers, stubVerifier{uid: "d1"})

	if w := doRequest(r, http.MethodPost, "/trips/t1/accept", `{"driver_id":"d2"}`); w.Code != http.StatusForbidden {
		t.Errorf("accept for another driver: expected 403, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/trips", createBody); w.Code != http.StatusForbidden {
		t.Errorf("create for another customer: expected 403, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPut, "/drivers/d2/status", `{"status":"offline"}`); w.Code != http.StatusForbidden {
		t.Errorf("status for another driver: expected 403, got %d", w.Code)
	}
	if trips.calls != 0 || drivers.calls != 0 {
		t.Fatalf("services should not be called, got trips=%d drivers=%d", trips.calls, drivers.calls)
	}
	if w := doRequest(r, http.MethodPost, "/trips/t1/accept", `{"driver_id":"d1"}`); w.Code != http.StatusOK {
		t.Errorf("accept as self: expected 200, got %d", w.Code)
	}
}

func TestCompleteAndCancelRequireTripParty(t *testing.T) {
	ongoing := &trip.Trip{ID: "t1", Status: trip.StatusOngoing, CustomerID: "c1", DriverID: types.ID("d1").Ptr()}
	tests := []struct {
		name   string
		caller string
		path   string
		want   int
	}{
		{"assigned driver completes", "d1", "/trips/t1/complete", http.StatusOK},
		{"customer cannot complete", "c1", "/trips/t1/complete", http.StatusForbidden},
		{"stranger cannot complete", "x9", "/trips/t1/complete", http.StatusForbidden},
		{"customer cancels", "c1", "/trips/t1/cancel", http.StatusOK},
		{"assigned driver cancels", "d1", "/trips/t1/cancel", http.StatusOK},
		{"stranger cannot cancel", "x9", "/trips/t1/cancel", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trips := &fakeTrips{current: ongoing}
			r := buildRouter(trips, &fakeDrivers{}, stubVerifier{uid: tt.caller})

			w := doRequest(r, http.MethodPost, tt.path, "")
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want == http.StatusForbidden && trips.writes != 0 {
				t.Fatalf("transition must not run for a forbidden caller")
			}
		})
	}
}

func TestCancelUnknownTripWithAuth(t *testing.T) {
	r := buildRouter(&fakeTrips{err: apperr.ErrTripNotFound}, &fakeDrivers{}, stubVerifier{uid: "c1"})
	if w := doRequest(r, http.MethodPost, "/trips/nope/cancel", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDriverStatus(t *testing.T) {
	drivers := &fakeDrivers{}
	r := buildRouter(&fakeTrips{}, drivers, nil)

	w := doRequest(r, http.MethodPut, "/drivers/d1/status", `{"status":"offline"}`)
	if w.Code != http.StatusOK || drivers.statusCmd.Status != driver.StatusOffline {
		t.Fatalf("expected offline update, got %d %+v", w.Code, drivers.statusCmd)
	}
	if w := doRequest(r, http.MethodPut, "/drivers/d1/status", `{"status":"napping"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestDriverLocation(t *testing.T) {
	r := buildRouter(&fakeTrips{}, &fakeDrivers{}, nil)

	w := doRequest(r, http.MethodPut, "/drivers/d1/location", `{"location":[121.5,25.0]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"location":[121.5,25]`)) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if w := doRequest(r, http.MethodPut, "/drivers/d1/location", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without location, got %d", w.Code)
	}
}
