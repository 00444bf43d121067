package types

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_42")
	if got := GetRequestID(ctx); got != "req_42" {
		t.Errorf("GetRequestID = %q, want req_42", got)
	}
}

func TestGetRequestID_Unset(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("expected empty string for an unset ID, got %q", got)
	}
}
