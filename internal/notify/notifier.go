package notify

import (
	"context"

	"go.uber.org/zap"
)

// Имена шаблонов писем. Рендеринг и доставка остаются за реализацией.
const (
	TemplateBookingRescheduled = "booking_rescheduled"
	TemplateReminder24h        = "reminder_24h"
	TemplateReminder3h         = "reminder_3h"
)

// Notifier отправляет шаблонное письмо на адрес. Вызовы fire-and-forget:
// ошибка доставки логируется вызывающей стороной и никогда не откатывает
// уже зафиксированный переход состояния.
type Notifier interface {
	Send(ctx context.Context, to string, template string, data map[string]string) error
}

// LogNotifier реализация по умолчанию: только пишет в лог. Реальная
// почтовая доставка подключается внешним слоем вместо неё.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, to string, template string, data map[string]string) error {
	n.logger.Info("Notification dispatched",
		zap.String("to", to),
		zap.String("template", template),
		zap.Any("data", data),
	)
	return nil
}
