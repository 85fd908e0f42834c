// Package monitoring raises alerts when a batch run breaches configured
// thresholds and delivers them to a webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/audit-cli/internal/audit"
	"github.com/sells-group/audit-cli/internal/config"
	"github.com/sells-group/audit-cli/internal/model"
)

// minResults is the smallest run whose rates are considered.
const minResults = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate      AlertType = "failure_rate"
	AlertFallbackRate     AlertType = "fallback_rate"
	AlertCostOverrun      AlertType = "cost_overrun"
	AlertCriticalFindings AlertType = "critical_findings"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a batch summary against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks s against thresholds and returns any alerts. Zero
// thresholds are disabled.
func (a *Alerter) Evaluate(s audit.Summary) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if s.Total >= minResults && a.cfg.FailureRateThreshold > 0 {
		rate := float64(s.Failed) / float64(s.Total)
		if rate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Analysis failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d analyzed)",
					rate*100, a.cfg.FailureRateThreshold*100, s.Failed, s.Total,
				),
				Details: map[string]any{
					"failure_rate":  rate,
					"threshold":     a.cfg.FailureRateThreshold,
					"failed":        s.Failed,
					"total":         s.Total,
					"by_error_kind": s.ByErrorKind,
				},
				Timestamp: now,
			})
		}
	}

	if s.Total >= minResults && a.cfg.FallbackRateThreshold > 0 {
		rate := float64(s.UsedFallback) / float64(s.Total)
		if rate > a.cfg.FallbackRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertFallbackRate,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Fallback rate %.1f%% exceeds threshold %.1f%% (%d of %d served by fallback)",
					rate*100, a.cfg.FallbackRateThreshold*100, s.UsedFallback, s.Total,
				),
				Details: map[string]any{
					"fallback_rate": rate,
					"threshold":     a.cfg.FallbackRateThreshold,
					"used_fallback": s.UsedFallback,
					"total":         s.Total,
				},
				Timestamp: now,
			})
		}
	}

	if a.cfg.CostThresholdUSD > 0 && s.EstimatedCostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Estimated API cost $%.2f exceeds threshold $%.2f",
				s.EstimatedCostUSD, a.cfg.CostThresholdUSD,
			),
			Details: map[string]any{
				"cost_usd":      s.EstimatedCostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"input_tokens":  s.InputTokens,
				"output_tokens": s.OutputTokens,
			},
			Timestamp: now,
		})
	}

	if a.cfg.AlertOnCritical && s.BySeverity[model.SeverityCritical] > 0 {
		n := s.BySeverity[model.SeverityCritical]
		alerts = append(alerts, Alert{
			Type:     AlertCriticalFindings,
			Severity: "critical",
			Message:  fmt.Sprintf("%d batch(es) reported critical findings", n),
			Details: map[string]any{
				"critical": n,
				"total":    s.Total,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
