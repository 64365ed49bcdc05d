package models

const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)

const (
	// SlotStepMinutes шаг календарной сетки
	SlotStepMinutes = 15

	// MinutesPerDay длина суток в минутах
	MinutesPerDay = 24 * 60

	// DefaultSessionTTL время жизни сессии мастера бронирования в секундах
	DefaultSessionTTL = 24 * 60 * 60

	// DefaultCatalogCacheTTL время жизни кэша каталога в секундах
	DefaultCatalogCacheTTL = 30

	// DefaultRowHeight высота строки календаря в пикселях
	DefaultRowHeight = 20

	// SubmitRateLimit количество попыток отправки в окне
	SubmitRateLimit = 5

	// SubmitRateWindow окно ограничения попыток отправки в секундах
	SubmitRateWindow = 60
)

const (
	ReasonNoSeats          = "No seats available."
	ReasonBookingOpens     = "Booking opens %s."
	ReasonDeadlinePassed   = "Booking deadline has passed."
	AvailabilityDisclaimer = "Availability is confirmed when you submit your booking."
)
