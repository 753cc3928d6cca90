package services

import (
	"context"
	"testing"
	"time"
)

func TestCombineStatus(t *testing.T) {
	tests := []struct {
		current, candidate, want string
	}{
		{"ok", "ok", "ok"},
		{"ok", "degraded", "degraded"},
		{"degraded", "ok", "degraded"},
		{"degraded", "critical", "critical"},
		{"critical", "degraded", "critical"},
		{"", "degraded", "degraded"},
		{"ok", "bogus", "ok"},
	}
	for _, tt := range tests {
		if got := combineStatus(tt.current, tt.candidate); got != tt.want {
			t.Errorf("combineStatus(%q, %q) = %q, want %q", tt.current, tt.candidate, got, tt.want)
		}
	}
}

func TestHumanizeDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{time.Hour, "1h"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d 2h 3m 4s"},
		{90*time.Minute + 400*time.Millisecond, "1h 30m"},
	}
	for _, tt := range tests {
		if got := humanizeDuration(tt.in); got != tt.want {
			t.Errorf("humanizeDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHealthReportWithoutDependencies(t *testing.T) {
	next := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	svc := NewHealthService(HealthOptions{
		RedisRequired: true,
		NextRuns:      func() []time.Time { return []time.Time{next} },
	})
	report := svc.GetHealthReport(context.Background())

	if report.Status != overallStatusCritical {
		t.Errorf("Status = %q, want critical", report.Status)
	}
	if svc.HTTPStatusForOverall(report.Status) != 503 {
		t.Error("critical should map to 503")
	}
	if report.Service != defaultServiceName || report.Environment != "unknown" {
		t.Errorf("defaults not applied: %+v", report)
	}
	if len(report.Dependencies) != 2 || report.Dependencies[1].Status != dependencyStatusDown {
		t.Errorf("Dependencies = %+v", report.Dependencies)
	}
	if len(report.Scheduler) != 1 || !report.Scheduler[0].Equal(next) {
		t.Errorf("Scheduler = %v", report.Scheduler)
	}
}
