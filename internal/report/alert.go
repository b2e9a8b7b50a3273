package report

import (
	"context"
	"fmt"
	"strings"

	"bracketflow/internal/model"
	"bracketflow/pkg/push/apns"

	"go.uber.org/multierr"
)

type MailSender interface {
	Enabled() bool
	Send(subject, body string) error
}

type Pusher interface {
	DeviceTokens() []string
	Push(msg *apns.PushMessage, deviceToken string) (*apns.PushResponse, error)
}

// 告警级别
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
)

// Alert 需要运维关注的执行结果
type Alert struct {
	Level   string
	Subject string
	Body    string
}

// AlertFor 只有止损失败、开仓未成交、止盈部分失败需要告警
func AlertFor(rep *model.ExecutionReport) (*Alert, bool) {
	var a Alert
	switch {
	case rep.ManualIntervention():
		a.Level = LevelCritical
		a.Subject = fmt.Sprintf("[%s] %s 止损下单失败，仓位无保护，需要人工处理", a.Level, rep.Symbol)
	case rep.Outcome == model.OutcomeEntryNotFilled:
		a.Level = LevelWarning
		a.Subject = fmt.Sprintf("[%s] %s 开仓单未成交，请确认订单状态", a.Level, rep.Symbol)
	case rep.PartialTakeProfits():
		a.Level = LevelWarning
		a.Subject = fmt.Sprintf("[%s] %s %d 个止盈单下单失败", a.Level, rep.Symbol, len(rep.FailedLegs()))
	default:
		return nil, false
	}
	a.Body = alertBody(rep)
	return &a, true
}

func alertBody(rep *model.ExecutionReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "execution: %d\n", rep.ExecutionID)
	fmt.Fprintf(&b, "signal: %d\n", rep.SignalID)
	fmt.Fprintf(&b, "symbol: %s %s x%d\n", rep.Symbol, rep.Side, rep.Leverage)
	fmt.Fprintf(&b, "outcome: %s (reached %s)\n", rep.Outcome, rep.Reached)
	if rep.Entry != nil {
		fmt.Fprintf(&b, "entry order: %s status=%s executed=%s\n", rep.Entry.OrderID, rep.Entry.Status, rep.Entry.ExecutedQty)
	}
	if rep.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", rep.Error)
	}
	for _, leg := range rep.FailedLegs() {
		fmt.Fprintf(&b, "failed leg %s @ %v: %s\n", leg.Label, leg.Price, leg.Error)
	}
	return b.String()
}

// AlertSink 通过邮件和 APNs 通知运维
type AlertSink struct {
	mailer MailSender
	pusher Pusher
}

// NewAlertSink mailer 或 pusher 可以为 nil
func NewAlertSink(mailer MailSender, pusher Pusher) *AlertSink {
	return &AlertSink{mailer: mailer, pusher: pusher}
}

func (s *AlertSink) Name() string { return "alert" }

func (s *AlertSink) Report(_ context.Context, rep *model.ExecutionReport) error {
	alert, ok := AlertFor(rep)
	if !ok {
		return nil
	}
	var errs error
	if s.mailer != nil && s.mailer.Enabled() {
		errs = multierr.Append(errs, s.mailer.Send(alert.Subject, alert.Body))
	}
	if s.pusher != nil {
		msg := &apns.PushMessage{
			Category: "EXECUTION_ALERT",
			Title:    alert.Subject,
			Body:     fmt.Sprintf("%s %s: %s", rep.Symbol, rep.Outcome, rep.Error),
			Sound:    "default",
			ExtParams: map[string]interface{}{
				"group":        "bracketflow",
				"level":        alert.Level,
				"execution_id": rep.ExecutionID,
				"signal_id":    rep.SignalID,
			},
		}
		for _, token := range s.pusher.DeviceTokens() {
			if _, err := s.pusher.Push(msg, token); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("push %s: %w", shortToken(token), err))
			}
		}
	}
	return errs
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
