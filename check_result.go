package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/guregu/null/v5"
)

type MonitorStatus string

const (
	StatusUp       MonitorStatus = "up"
	StatusDown     MonitorStatus = "down"
	StatusDegraded MonitorStatus = "degraded"
)

// ParseMonitorStatus accepts the three canonical statuses and the legacy
// "active" and "error" values emitted by older checkers.
func ParseMonitorStatus(s string) (MonitorStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "active":
		return StatusUp, nil
	case "down", "error":
		return StatusDown, nil
	case "degraded":
		return StatusDegraded, nil
	default:
		return "", fmt.Errorf("unknown monitor status %q", s)
	}
}

func (s MonitorStatus) Valid() bool {
	return s == StatusUp || s == StatusDown || s == StatusDegraded
}

var monitorMethods = []string{"GET", "POST", "HEAD", "PUT", "PATCH", "DELETE", "OPTIONS"}

type CheckPayloadHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CheckPayload is the wire shape submitted by a region checker, either through
// the HTTP webhook or the check queue.
type CheckPayload struct {
	WorkspaceID   string               `json:"workspaceId"`
	MonitorID     string               `json:"monitorId"`
	Method        string               `json:"method"`
	Body          null.String          `json:"body,omitempty"`
	Headers       []CheckPayloadHeader `json:"headers,omitempty"`
	Url           string               `json:"url"`
	CronTimestamp int64                `json:"cronTimestamp"`
	Status        string               `json:"status"`
	Assertions    null.String          `json:"assertions"`
	Region        string               `json:"region,omitempty"`
	StatusCode    null.Int             `json:"statusCode,omitempty"`
	Message       null.String          `json:"message,omitempty"`
}

// CheckResult is the validated, normalized form of a CheckPayload.
type CheckResult struct {
	MonitorID     string        `json:"monitor_id"`
	WorkspaceID   string        `json:"workspace_id"`
	Region        string        `json:"region"`
	Status        MonitorStatus `json:"status"`
	StatusCode    null.Int      `json:"status_code"`
	Message       null.String   `json:"message"`
	Url           string        `json:"url"`
	Method        string        `json:"method"`
	CronTimestamp int64         `json:"cron_timestamp"`
	Assertions    null.String   `json:"assertions"`
	// Exhausted is set when the result was produced by the retry guard
	// instead of an actual probe.
	Exhausted bool `json:"exhausted"`
}

func (r CheckResult) CheckedAt() time.Time {
	return time.UnixMilli(r.CronTimestamp).UTC()
}

// ValidationError reports a permanently malformed check payload. It must not
// be retried by the delivering queue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid check payload: " + e.Reason
	}
	return fmt.Sprintf("invalid check payload: %s %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// ParseCheckResult decodes and validates a check payload. deliveryRegion is the
// region attached to the delivery by an authenticated checker or the queue
// metadata, and is used when the payload itself does not carry one.
func ParseCheckResult(body []byte, deliveryRegion string) (CheckResult, error) {
	var payload CheckPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return CheckResult{}, &ValidationError{Reason: err.Error()}
	}

	return payload.Validate(deliveryRegion)
}

func (p CheckPayload) Validate(deliveryRegion string) (CheckResult, error) {
	if strings.TrimSpace(p.MonitorID) == "" {
		return CheckResult{}, &ValidationError{Field: "monitorId", Reason: "is required"}
	}
	if strings.TrimSpace(p.Url) == "" {
		return CheckResult{}, &ValidationError{Field: "url", Reason: "is required"}
	}

	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		return CheckResult{}, &ValidationError{Field: "method", Reason: "is required"}
	}
	if !slices.Contains(monitorMethods, method) {
		return CheckResult{}, &ValidationError{Field: "method", Reason: fmt.Sprintf("%q is not supported", p.Method)}
	}

	if p.CronTimestamp <= 0 {
		return CheckResult{}, &ValidationError{Field: "cronTimestamp", Reason: "is required"}
	}

	if p.Status == "" {
		return CheckResult{}, &ValidationError{Field: "status", Reason: "is required"}
	}
	status, err := ParseMonitorStatus(p.Status)
	if err != nil {
		return CheckResult{}, &ValidationError{Field: "status", Reason: err.Error()}
	}

	region := strings.TrimSpace(p.Region)
	deliveryRegion = strings.TrimSpace(deliveryRegion)
	switch {
	case region == "" && deliveryRegion == "":
		return CheckResult{}, &ValidationError{Field: "region", Reason: "is required"}
	case region == "":
		region = deliveryRegion
	case deliveryRegion != "" && region != deliveryRegion:
		return CheckResult{}, &ValidationError{Field: "region", Reason: fmt.Sprintf("%q does not match delivery region %q", region, deliveryRegion)}
	}

	switch status {
	case StatusUp, StatusDegraded:
		if !p.StatusCode.Valid {
			return CheckResult{}, &ValidationError{Field: "statusCode", Reason: "is required for a successful check"}
		}
	case StatusDown:
		if !p.StatusCode.Valid && (!p.Message.Valid || p.Message.String == "") {
			return CheckResult{}, &ValidationError{Field: "statusCode", Reason: "or message is required for a failed check"}
		}
	}
	if p.StatusCode.Valid && (p.StatusCode.Int64 < 100 || p.StatusCode.Int64 > 599) {
		return CheckResult{}, &ValidationError{Field: "statusCode", Reason: fmt.Sprintf("%d is out of range", p.StatusCode.Int64)}
	}

	return CheckResult{
		MonitorID:     p.MonitorID,
		WorkspaceID:   p.WorkspaceID,
		Region:        region,
		Status:        status,
		StatusCode:    p.StatusCode,
		Message:       p.Message,
		Url:           p.Url,
		Method:        method,
		CronTimestamp: p.CronTimestamp,
		Assertions:    p.Assertions,
	}, nil
}
