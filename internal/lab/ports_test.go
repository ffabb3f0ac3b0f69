package lab

import (
	"errors"
	"testing"
)

func TestNextFreePort(t *testing.T) {
	tests := []struct {
		name     string
		base     int
		size     int
		used     []int
		want     int
		wantErr  bool
	}{
		{name: "empty", base: 3001, size: 10, used: nil, want: 3001},
		{name: "skips used", base: 3001, size: 10, used: []int{3001, 3002}, want: 3003},
		{name: "gap is reused", base: 3001, size: 10, used: []int{3001, 3003}, want: 3002},
		{name: "ports below base ignored", base: 3001, size: 10, used: []int{80, 443}, want: 3001},
		{name: "exhausted", base: 3001, size: 2, used: []int{3001, 3002}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextFreePort(tt.base, tt.size, tt.used)
			if tt.wantErr {
				if !errors.Is(err, ErrNoPortAvailable) {
					t.Fatalf("Expected ErrNoPortAvailable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected port %d, got %d", tt.want, got)
			}
		})
	}
}
