package constants

import "time"

const (
	MaxIdentifierLength = 255
	MaxPropertyLength   = 1024
	MaxArrayItems       = 100
	MaxObjectKeys       = 20
)

const (
	DefaultDispatchTimeout = 10 * time.Second
	DefaultHTTPTimeout     = 10 * time.Second
	ShutdownTimeout        = 5 * time.Second
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	StrategyParallel   = "parallel"
	StrategySequential = "sequential"
	StrategyFailover   = "failover"
)

const (
	ActionRouteTo     = "route_to"
	ActionExcludeFrom = "exclude_from"
	ActionDuplicateTo = "duplicate_to"
)

const (
	FallbackAll      = "all"
	FallbackDefaults = "defaults"
	FallbackNone     = "none"
)

const (
	OperationTrack    = "track"
	OperationIdentify = "identify"
	OperationGroup    = "group"
	OperationPage     = "page"
)

const (
	DefaultBatchMaxSize       = 50
	DefaultBatchFlushInterval = 5 * time.Second
	DefaultBatchItemRetryCap  = 3
)

const (
	ConsentKeyPrefix = "consent:"
)

const (
	DefaultMongoDBName = "relay"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)
