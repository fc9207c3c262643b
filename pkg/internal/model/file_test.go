package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/yeisme/yukumo/pkg/internal/model"
)

func TestFileRecordValidate(t *testing.T) {
	full := model.Placement{FileURL: "https://example/a", SpaceID: "s", BlockID: "b"}

	tests := []struct {
		name    string
		rec     model.FileRecord
		wantErr bool
		partial bool
	}{
		{
			name: "complete",
			rec:  model.FileRecord{FileName: "a.txt", Placement: full, OriginFilePath: "/tmp/a.txt"},
		},
		{
			name:    "missing block",
			rec:     model.FileRecord{FileName: "a.txt", Placement: model.Placement{FileURL: "u", SpaceID: "s"}, OriginFilePath: "/tmp/a.txt"},
			wantErr: true,
			partial: true,
		},
		{
			name:    "empty placement",
			rec:     model.FileRecord{FileName: "a.txt", OriginFilePath: "/tmp/a.txt"},
			wantErr: true,
			partial: true,
		},
		{
			name:    "missing name",
			rec:     model.FileRecord{Placement: full, OriginFilePath: "/tmp/a.txt"},
			wantErr: true,
		},
		{
			name:    "bad hash",
			rec:     model.FileRecord{FileName: "a.txt", Placement: full, OriginFilePath: "/tmp/a.txt", ContentHash: "nothex"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.partial && !errors.Is(err, model.ErrIncompletePlacement) {
				t.Errorf("expected ErrIncompletePlacement, got %v", err)
			}
		})
	}
}

func TestFingerprintHelpers(t *testing.T) {
	var r model.FileRecord
	if r.HasFingerprint() {
		t.Error("zero record should have no fingerprint")
	}

	if !r.ModTimeAt().IsZero() {
		t.Error("zero ModTime should map to zero time")
	}

	now := time.Unix(1700000000, 42)
	r.ModTime = now.UnixNano()

	if !r.HasFingerprint() || !r.ModTimeAt().Equal(now) {
		t.Errorf("ModTimeAt() = %v, want %v", r.ModTimeAt(), now)
	}
}
