package migrate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/yeisme/yukumo/pkg/internal/migrate"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func row(name, url string, created time.Time) migrate.Row {
	return migrate.Row{
		FileName:       name,
		FileURL:        url,
		SpaceID:        "space",
		BlockID:        "block-" + url,
		OriginFilePath: "/data/" + name,
		CreatedAt:      created,
	}
}

func TestRekey(t *testing.T) {
	tests := []struct {
		name        string
		rows        []migrate.Row
		policy      migrate.CollisionPolicy
		wantURLs    []string
		wantResolve int
		wantErr     bool
	}{
		{
			name:     "no collisions",
			rows:     []migrate.Row{row("b.txt", "u2", t0), row("a.txt", "u1", t0)},
			policy:   migrate.PolicyKeepLatest,
			wantURLs: []string{"u1", "u2"},
		},
		{
			name: "keep latest",
			rows: []migrate.Row{
				row("a.txt", "old", t0),
				row("a.txt", "new", t0.Add(time.Hour)),
				row("a.txt", "mid", t0.Add(time.Minute)),
			},
			policy:      migrate.PolicyKeepLatest,
			wantURLs:    []string{"new"},
			wantResolve: 1,
		},
		{
			name:    "tie on latest",
			rows:    []migrate.Row{row("a.txt", "x", t0), row("a.txt", "y", t0)},
			policy:  migrate.PolicyKeepLatest,
			wantErr: true,
		},
		{
			name:     "tie below latest is fine",
			rows:     []migrate.Row{row("a.txt", "x", t0), row("a.txt", "y", t0), row("a.txt", "z", t0.Add(time.Second))},
			policy:   migrate.PolicyKeepLatest,
			wantURLs: []string{"z"}, wantResolve: 1,
		},
		{
			name:    "fail policy",
			rows:    []migrate.Row{row("a.txt", "old", t0), row("a.txt", "new", t0.Add(time.Hour))},
			policy:  migrate.PolicyFail,
			wantErr: true,
		},
		{
			name:    "empty name",
			rows:    []migrate.Row{row("", "u", t0)},
			policy:  migrate.PolicyKeepLatest,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, res, err := migrate.Rekey(tt.rows, tt.policy)

			if tt.wantErr {
				var kc *migrate.KeyCollisionError
				if !errors.As(err, &kc) {
					t.Fatalf("Rekey() error = %v, want KeyCollisionError", err)
				}

				if out != nil {
					t.Errorf("Rekey() returned rows alongside an error")
				}

				return
			}

			if err != nil {
				t.Fatalf("Rekey() error = %v", err)
			}

			if len(out) != len(tt.wantURLs) {
				t.Fatalf("Rekey() = %d rows, want %d", len(out), len(tt.wantURLs))
			}

			for i, want := range tt.wantURLs {
				if out[i].FileURL != want {
					t.Errorf("row %d file_url = %q, want %q", i, out[i].FileURL, want)
				}
			}

			if len(res) != tt.wantResolve {
				t.Errorf("resolutions = %d, want %d", len(res), tt.wantResolve)
			}
		})
	}
}

func TestRekeyReportsAllCollisions(t *testing.T) {
	rows := []migrate.Row{
		row("a.txt", "1", t0), row("a.txt", "2", t0),
		row("b.txt", "3", t0), row("b.txt", "4", t0),
	}

	_, _, err := migrate.Rekey(rows, migrate.PolicyFail)
	if err == nil {
		t.Fatal("expected error")
	}

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 2 {
		t.Fatalf("want two joined collision errors, got %v", err)
	}
}

func TestParseCollisionPolicy(t *testing.T) {
	if p, err := migrate.ParseCollisionPolicy(""); err != nil || p != migrate.PolicyKeepLatest {
		t.Errorf(`ParseCollisionPolicy("") = %q, %v`, p, err)
	}

	if p, err := migrate.ParseCollisionPolicy("fail"); err != nil || p != migrate.PolicyFail {
		t.Errorf(`ParseCollisionPolicy("fail") = %q, %v`, p, err)
	}

	if _, err := migrate.ParseCollisionPolicy("newest"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
