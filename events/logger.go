package events

import "log/slog"

// LogSubscriber пишет каждое доменное событие в структурированный лог.
type LogSubscriber struct {
	logger *slog.Logger
}

func NewLogSubscriber(logger *slog.Logger) *LogSubscriber {
	return &LogSubscriber{logger: logger}
}

func (s *LogSubscriber) Notify(event Event) {
	s.logger.Info("domain event",
		slog.String("type", string(event.Type)),
		slog.Int("match_id", event.MatchID),
		slog.Int("reservation_id", event.ReservationID),
		slog.Int("recipients", len(event.Recipients)),
	)
}
