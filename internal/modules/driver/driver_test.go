package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmcloughlin/geohash"
	"github.com/pashagolub/pgxmock/v4"

	"dispatch/internal/apperr"
	"dispatch/internal/types"
)

var driverColumns = []string{"id", "name", "st_x", "st_y", "geohash", "status", "vehicle_id", "vehicle_type"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestGet(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 0, nil)

	mock.ExpectQuery(`(?s)FROM drivers d.*LEFT JOIN vehicles`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows(driverColumns).AddRow("d1", "Ana", 1.0, 2.0, "s01mtw0", "available", "v1", "sedan"))

	d, err := svc.Get(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Status != StatusAvailable || d.VehicleClass != "sedan" || d.VehicleID == nil || *d.VehicleID != "v1" {
		t.Fatalf("unexpected driver: %+v", d)
	}
	if d.Location != (types.Point{Lng: 1, Lat: 2}) {
		t.Fatalf("unexpected location: %+v", d.Location)
	}
}

func TestGetWithoutVehicle(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 0, nil)

	mock.ExpectQuery(`FROM drivers d`).
		WithArgs("d2").
		WillReturnRows(pgxmock.NewRows(driverColumns).AddRow("d2", "Bo", 0.0, 0.0, "", "offline", nil, nil))

	d, err := svc.Get(context.Background(), "d2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.VehicleID != nil || d.VehicleClass != "" {
		t.Fatalf("expected no vehicle, got %+v", d)
	}
}

func TestGetNotFound(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 0, nil)

	mock.ExpectQuery(`FROM drivers d`).WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

	if _, err := svc.Get(context.Background(), "ghost"); !errors.Is(err, apperr.ErrDriverNotFound) {
		t.Fatalf("expected ErrDriverNotFound, got %v", err)
	}
}

func TestUpdateLocationStoresGeohash(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 0, nil)
	p := types.Point{Lng: 121.5654, Lat: 25.0330}
	cell := geohash.EncodeWithPrecision(p.Lat, p.Lng, GeohashPrecision)

	mock.ExpectExec(`UPDATE drivers`).
		WithArgs(p.Lng, p.Lat, cell, "d1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`FROM drivers d`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows(driverColumns).AddRow("d1", "Ana", p.Lng, p.Lat, cell, "available", "v1", "sedan"))

	d, err := svc.UpdateLocation(context.Background(), UpdateLocationCommand{DriverID: "d1", Location: p})
	if err != nil {
		t.Fatalf("update location: %v", err)
	}
	if d.Geohash != cell || len(cell) != GeohashPrecision {
		t.Fatalf("expected geohash %q, got %q", cell, d.Geohash)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateLocationValidation(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 0, nil)

	_, err := svc.UpdateLocation(context.Background(), UpdateLocationCommand{DriverID: "d1", Location: types.Point{Lng: 200, Lat: 0}})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no store calls expected: %v", err)
	}
}

func TestUpdateLocationUnknownDriver(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 0, nil)

	mock.ExpectExec(`UPDATE drivers`).
		WithArgs(1.0, 1.0, pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := svc.UpdateLocation(context.Background(), UpdateLocationCommand{DriverID: "ghost", Location: types.Point{Lng: 1, Lat: 1}})
	if !errors.Is(err, apperr.ErrDriverNotFound) {
		t.Fatalf("expected ErrDriverNotFound, got %v", err)
	}
}

func TestSetAvailabilityGoesOffline(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 0, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)FROM drivers d.*FOR UPDATE OF d`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows(driverColumns).AddRow("d1", "Ana", 1.0, 1.0, "", "available", "v1", "sedan"))
	mock.ExpectExec(`UPDATE drivers SET status`).
		WithArgs("offline", "d1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	d, err := svc.SetAvailability(context.Background(), SetAvailabilityCommand{DriverID: "d1", Status: StatusOffline})
	if err != nil {
		t.Fatalf("set availability: %v", err)
	}
	if d.Status != StatusOffline {
		t.Fatalf("expected offline, got %s", d.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetAvailabilityRejectsOnTripDriver(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 0, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF d`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows(driverColumns).AddRow("d1", "Ana", 1.0, 1.0, "", "on_trip", "v1", "sedan"))
	mock.ExpectRollback()

	_, err := svc.SetAvailability(context.Background(), SetAvailabilityCommand{DriverID: "d1", Status: StatusOffline})
	if !errors.Is(err, apperr.ErrDriverNotAvailable) {
		t.Fatalf("expected ErrDriverNotAvailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetAvailabilityBoundsLockWait(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 750*time.Millisecond, nil)

	// The bound is applied inside the tx before the row lock is requested.
	mock.ExpectBegin()
	mock.ExpectExec(`set_config\('lock_timeout'`).
		WithArgs("750ms").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`FOR UPDATE OF d`).
		WithArgs("d1").
		WillReturnError(&pgconn.PgError{Code: "55P03"})
	mock.ExpectRollback()

	_, err := svc.SetAvailability(context.Background(), SetAvailabilityCommand{DriverID: "d1", Status: StatusAvailable})
	if !errors.Is(err, apperr.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetAvailabilityRejectsOnTripTarget(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, NewStore(), 0, nil)

	_, err := svc.SetAvailability(context.Background(), SetAvailabilityCommand{DriverID: "d1", Status: StatusOnTrip})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"available", "on_trip", "offline"} {
		if _, ok := ParseStatus(s); !ok {
			t.Errorf("ParseStatus(%q) rejected", s)
		}
	}
	if _, ok := ParseStatus("busy"); ok {
		t.Error("ParseStatus(busy) accepted")
	}
}
