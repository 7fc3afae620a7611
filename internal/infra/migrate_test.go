package infra

import "testing"

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/dispatch?sslmode=disable":   "pgx5://u:p@db:5432/dispatch?sslmode=disable",
		"postgresql://u:p@db:5432/dispatch?sslmode=disable": "pgx5://u:p@db:5432/dispatch?sslmode=disable",
		"pgx5://u:p@db/dispatch":                            "pgx5://u:p@db/dispatch",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}
