package main

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseCheckFlag(t *testing.T) {
	tests := []struct {
		raw     string
		want    selectedChecks
		wantErr bool
	}{
		{raw: "", want: selectedChecks{preflight: true}},
		{raw: "default", want: selectedChecks{preflight: true}},
		{raw: "ALL", want: selectedChecks{preflight: true, lifecycle: true}},
		{raw: "lifecycle", want: selectedChecks{lifecycle: true}},
		{raw: " preflight , order_lifecycle ", want: selectedChecks{preflight: true, lifecycle: true}},
		{raw: "stream", wantErr: true},
		{raw: ",", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseCheckFlag(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseCheckFlag(%q) error = nil, want error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseCheckFlag(%q) error = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("parseCheckFlag(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestLifecyclePriceRestsBelowMarket(t *testing.T) {
	got := lifecyclePrice(decimal.RequireFromString("67012.357"))
	if !got.Equal(decimal.RequireFromString("33506.17")) {
		t.Fatalf("lifecyclePrice() = %s, want 33506.17", got)
	}
}
