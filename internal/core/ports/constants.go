package ports

import "time"

const (
	DefaultGraceWindow        = 5 * time.Minute  // Допустимое отставание времени перевода от создания заказа
	DefaultOrderTTL           = 10 * time.Minute // Время жизни заказа на пополнение
	DefaultCodeWidth          = 4
	DefaultFingerprintRetries = 5
	DefaultSweepBatchSize     = 80
	DefaultLedgerFetchLimit   = 100
	MinPollInterval           = 3 * time.Second
	DefaultLateMatchLookback  = 24 * time.Hour
	MaxLedgerPageSize         = 200
	DefaultLedgerCacheTTL     = 3 * time.Second
)
