// README: Bench cases; seeding, HTTP contract checks, accept races and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/infra"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

// Bench fixtures sit around Taipei 101; the surge zone covers them.
const (
	benchLng        = 121.5645
	benchLat        = 25.0340
	benchMultiplier = 1.5
	benchClass      = "BenchSedan"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := infra.NewDB(ctx, r.cfg.DSN, int32(r.cfg.Concurrency)); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		if rdb, err := infra.NewRedis(ctx, r.cfg.RedisAddr); err == nil {
			r.redis = rdb
		}
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not reachable"}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: statusSkip, Note: "redis not reachable; candidate cache disabled"}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Migration: apply (optional)", Run: func(ctx context.Context, r *Runner) Result {
			if !r.cfg.ApplyMigration {
				return Result{Status: statusSkip, Note: "apply-migration=false"}
			}
			if err := infra.Migrate(r.cfg.DSN, false); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Seed: surge zone and drivers", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not reachable"}
			}
			if err := r.seed(ctx); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass, Note: fmt.Sprintf("drivers=%d", r.cfg.Concurrency)}
		}},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			code, latency, _, err := r.do(ctx, http.MethodGet, "/health", nil)
			return expect(code, latency, err, http.StatusOK)
		}},
		{Name: "Create: inside surge zone -> 201 with surge price", Run: func(ctx context.Context, r *Runner) Result {
			var out createResp
			code, latency, body, err := r.do(ctx, http.MethodPost, "/trips", r.createBody("bench_c_create", benchClass))
			if res := expect(code, latency, err, http.StatusCreated); res.Status != statusPass {
				return res
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			if out.Trip.Price != 10*benchMultiplier || len(out.Candidates) == 0 {
				return Result{Status: statusFail, Note: fmt.Sprintf("price=%v candidates=%d", out.Trip.Price, len(out.Candidates))}
			}
			return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("candidates=%d", len(out.Candidates))}
		}},
		{Name: "Create: missing fields -> 400", Run: func(ctx context.Context, r *Runner) Result {
			code, latency, _, err := r.do(ctx, http.MethodPost, "/trips", map[string]any{})
			return expect(code, latency, err, http.StatusBadRequest)
		}},
		{Name: "Create: no drivers of class -> 404", Run: func(ctx context.Context, r *Runner) Result {
			code, latency, _, err := r.do(ctx, http.MethodPost, "/trips", r.createBody("bench_c_none", "BenchNoSuchClass"))
			return expect(code, latency, err, http.StatusNotFound)
		}},
		{Name: "Concurrency: many drivers accept one trip", Run: func(ctx context.Context, r *Runner) Result {
			return r.raceSameTrip(ctx)
		}},
		{Name: "Concurrency: one driver accepts many trips", Run: func(ctx context.Context, r *Runner) Result {
			return r.raceSameDriver(ctx)
		}},
		{Name: "Lifecycle: accept, complete, complete again -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.lifecycle(ctx)
		}},
		{Name: "Perf: driver location update throughput", Run: func(ctx context.Context, r *Runner) Result {
			return r.perfLocation(ctx)
		}},
	}
}

type createResp struct {
	Trip struct {
		ID    string  `json:"id"`
		Price float64 `json:"price"`
	} `json:"trip"`
	Candidates []struct {
		ID string `json:"id"`
	} `json:"candidates"`
}

func (r *Runner) createBody(customer, class string) map[string]any {
	return map[string]any{
		"customer_id":  customer,
		"pickup":       []float64{benchLng, benchLat},
		"dropoff":      []float64{121.5170, 25.0478},
		"vehicle_type": class,
	}
}

func (r *Runner) seed(ctx context.Context) error {
	stmts := []string{
		`DELETE FROM trips WHERE customer_id LIKE 'bench_%'`,
		`UPDATE drivers SET vehicle_id = NULL WHERE id LIKE 'bench_%'`,
		`DELETE FROM vehicles WHERE id LIKE 'bench_%'`,
		`DELETE FROM drivers WHERE id LIKE 'bench_%'`,
		`DELETE FROM surge_zones WHERE id = 'bench_zone'`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO surge_zones (id, name, boundary, multiplier)
		VALUES ('bench_zone', 'bench', ST_Expand(ST_SetSRID(ST_MakePoint($1, $2), 4326), 0.05), $3)`,
		benchLng, benchLat, benchMultiplier,
	); err != nil {
		return fmt.Errorf("seed zone: %w", err)
	}
	for i := 0; i < r.cfg.Concurrency; i++ {
		id := fmt.Sprintf("bench_d%d", i)
		lng := benchLng + float64(i)*0.0005
		if _, err := r.db.Exec(ctx, `
			INSERT INTO drivers (id, name, location, status)
			VALUES ($1, $1, ST_SetSRID(ST_MakePoint($2, $3), 4326), 'available')`, id, lng, benchLat); err != nil {
			return fmt.Errorf("seed driver: %w", err)
		}
		if _, err := r.db.Exec(ctx, `INSERT INTO vehicles (id, vehicle_type, driver_id) VALUES ($1, $2, $3)`, "bench_v"+id, benchClass, id); err != nil {
			return fmt.Errorf("seed vehicle: %w", err)
		}
		if _, err := r.db.Exec(ctx, `UPDATE drivers SET vehicle_id = $1 WHERE id = $2`, "bench_v"+id, id); err != nil {
			return fmt.Errorf("link vehicle: %w", err)
		}
	}
	return nil
}

func (r *Runner) newTrip(ctx context.Context, customer string) (string, error) {
	var out createResp
	code, _, body, err := r.do(ctx, http.MethodPost, "/trips", r.createBody(customer, benchClass))
	if err != nil {
		return "", err
	}
	if code != http.StatusCreated {
		return "", fmt.Errorf("create trip: status=%d", code)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.Trip.ID, nil
}

// freeDrivers returns the ids of seeded drivers still available.
func (r *Runner) freeDrivers(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM drivers WHERE id LIKE 'bench_%' AND status = 'available' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Runner) raceSameTrip(ctx context.Context) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not reachable"}
	}
	tripID, err := r.newTrip(ctx, "bench_c_race_trip")
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	drivers, err := r.freeDrivers(ctx)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	codes := r.fanOut(ctx, len(drivers), func(i int) (string, any) {
		return "/trips/" + tripID + "/accept", map[string]any{"driver_id": drivers[i]}
	})
	return judgeRace(codes)
}

func (r *Runner) raceSameDriver(ctx context.Context) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not reachable"}
	}
	drivers, err := r.freeDrivers(ctx)
	if err != nil || len(drivers) == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no free driver: %v", err)}
	}
	n := r.cfg.Concurrency
	trips := make([]string, n)
	for i := range trips {
		if trips[i], err = r.newTrip(ctx, fmt.Sprintf("bench_c_race_driver_%d", i)); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	codes := r.fanOut(ctx, n, func(i int) (string, any) {
		return "/trips/" + trips[i] + "/accept", map[string]any{"driver_id": drivers[0]}
	})
	return judgeRace(codes)
}

func (r *Runner) lifecycle(ctx context.Context) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not reachable"}
	}
	tripID, err := r.newTrip(ctx, "bench_c_lifecycle")
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	drivers, err := r.freeDrivers(ctx)
	if err != nil || len(drivers) == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no free driver: %v", err)}
	}
	steps := []struct {
		path string
		body any
		want int
	}{
		{"/trips/" + tripID + "/accept", map[string]any{"driver_id": drivers[0]}, http.StatusOK},
		{"/trips/" + tripID + "/complete", nil, http.StatusOK},
		{"/trips/" + tripID + "/complete", nil, http.StatusConflict},
	}
	start := time.Now()
	for _, s := range steps {
		code, _, _, err := r.do(ctx, http.MethodPost, s.path, s.body)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if code != s.want {
			return Result{Status: statusFail, Note: fmt.Sprintf("%s status=%d want=%d", s.path, code, s.want)}
		}
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func (r *Runner) perfLocation(ctx context.Context) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/drivers/bench_d%d/location", i)
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, _, err := r.do(ctx, http.MethodPut, path, map[string]any{
					"location": []float64{benchLng + float64(i)*0.0005, benchLat},
				})
				mu.Lock()
				if err != nil || code != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no requests completed (errors=%d)", errCount)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

// fanOut fires n requests released together and returns their status codes.
func (r *Runner) fanOut(ctx context.Context, n int, req func(i int) (string, any)) []int {
	codes := make([]int, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, body := req(i)
			<-start
			code, _, _, err := r.do(ctx, http.MethodPost, path, body)
			if err != nil {
				code = -1
			}
			codes[i] = code
		}(i)
	}
	close(start)
	wg.Wait()
	return codes
}

func judgeRace(codes []int) Result {
	ok, conflict, other := 0, 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		default:
			other++
		}
	}
	note := fmt.Sprintf("ok=%d conflict=%d other=%d", ok, conflict, other)
	if ok != 1 || other != 0 {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func (r *Runner) do(ctx context.Context, method, path string, body any) (int, time.Duration, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, time.Since(start), data, err
}

func expect(code int, latency time.Duration, err error, want int) Result {
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", code, want)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
}
