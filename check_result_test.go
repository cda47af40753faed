package main

import (
	"errors"
	"testing"
)

func TestParseMonitorStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    MonitorStatus
		wantErr bool
	}{
		{input: "up", want: StatusUp},
		{input: "DOWN", want: StatusDown},
		{input: " degraded ", want: StatusDegraded},
		{input: "active", want: StatusUp},
		{input: "error", want: StatusDown},
		{input: "unknown", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMonitorStatus(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got status %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseCheckResult(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		body := []byte(`{
			"workspaceId": "ws-1",
			"monitorId": "mon-1",
			"method": "get",
			"url": "https://example.com/health",
			"cronTimestamp": 1700000000000,
			"status": "up",
			"statusCode": 200,
			"region": "ams"
		}`)

		result, err := ParseCheckResult(body, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.MonitorID != "mon-1" || result.WorkspaceID != "ws-1" {
			t.Errorf("unexpected ids: %+v", result)
		}
		if result.Method != "GET" {
			t.Errorf("expected method to be upper cased, got %q", result.Method)
		}
		if result.Status != StatusUp {
			t.Errorf("expected status up, got %q", result.Status)
		}
		if result.Region != "ams" {
			t.Errorf("expected region ams, got %q", result.Region)
		}
		if !result.StatusCode.Valid || result.StatusCode.Int64 != 200 {
			t.Errorf("expected status code 200, got %v", result.StatusCode)
		}
		if result.Exhausted {
			t.Error("expected a parsed result not to be exhausted")
		}
		if got := result.CheckedAt().UnixMilli(); got != 1700000000000 {
			t.Errorf("expected checked at 1700000000000, got %d", got)
		}
	})

	t.Run("region from delivery", func(t *testing.T) {
		body := []byte(`{"monitorId":"mon-1","method":"GET","url":"https://example.com","cronTimestamp":1,"status":"down","message":"connection refused"}`)

		result, err := ParseCheckResult(body, "fra")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Region != "fra" {
			t.Errorf("expected region fra, got %q", result.Region)
		}
		if result.StatusCode.Valid {
			t.Errorf("expected no status code, got %v", result.StatusCode)
		}
	})

	invalid := []struct {
		name           string
		body           string
		deliveryRegion string
		field          string
	}{
		{
			name:  "malformed json",
			body:  `{"monitorId":`,
			field: "",
		},
		{
			name:  "missing monitor id",
			body:  `{"method":"GET","url":"https://example.com","cronTimestamp":1,"status":"up","statusCode":200,"region":"ams"}`,
			field: "monitorId",
		},
		{
			name:  "missing url",
			body:  `{"monitorId":"m","method":"GET","cronTimestamp":1,"status":"up","statusCode":200,"region":"ams"}`,
			field: "url",
		},
		{
			name:  "unsupported method",
			body:  `{"monitorId":"m","method":"TRACE","url":"https://example.com","cronTimestamp":1,"status":"up","statusCode":200,"region":"ams"}`,
			field: "method",
		},
		{
			name:  "missing cron timestamp",
			body:  `{"monitorId":"m","method":"GET","url":"https://example.com","status":"up","statusCode":200,"region":"ams"}`,
			field: "cronTimestamp",
		},
		{
			name:  "unknown status",
			body:  `{"monitorId":"m","method":"GET","url":"https://example.com","cronTimestamp":1,"status":"sideways","statusCode":200,"region":"ams"}`,
			field: "status",
		},
		{
			name:  "missing region",
			body:  `{"monitorId":"m","method":"GET","url":"https://example.com","cronTimestamp":1,"status":"up","statusCode":200}`,
			field: "region",
		},
		{
			name:           "region mismatch",
			body:           `{"monitorId":"m","method":"GET","url":"https://example.com","cronTimestamp":1,"status":"up","statusCode":200,"region":"ams"}`,
			deliveryRegion: "fra",
			field:          "region",
		},
		{
			name:  "up without status code",
			body:  `{"monitorId":"m","method":"GET","url":"https://example.com","cronTimestamp":1,"status":"up","region":"ams"}`,
			field: "statusCode",
		},
		{
			name:  "down without status code or message",
			body:  `{"monitorId":"m","method":"GET","url":"https://example.com","cronTimestamp":1,"status":"down","region":"ams"}`,
			field: "statusCode",
		},
		{
			name:  "status code out of range",
			body:  `{"monitorId":"m","method":"GET","url":"https://example.com","cronTimestamp":1,"status":"up","statusCode":42,"region":"ams"}`,
			field: "statusCode",
		},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCheckResult([]byte(tt.body), tt.deliveryRegion)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !IsValidationError(err) {
				t.Fatalf("expected a validation error, got %T: %v", err, err)
			}

			var validationErr *ValidationError
			errors.As(err, &validationErr)
			if validationErr.Field != tt.field {
				t.Errorf("expected field %q, got %q (%v)", tt.field, validationErr.Field, err)
			}
		})
	}
}

func TestIsValidationError(t *testing.T) {
	if IsValidationError(errors.New("boom")) {
		t.Error("expected a plain error not to be a validation error")
	}
	if IsValidationError(&StoreWriteError{Op: "x", Err: errors.New("boom")}) {
		t.Error("expected a store write error not to be a validation error")
	}
	if !IsValidationError(&ValidationError{Field: "url", Reason: "is required"}) {
		t.Error("expected a validation error to be detected")
	}
}
