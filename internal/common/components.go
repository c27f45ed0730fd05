package common

const (
	ComponentIndexer    = "indexer"
	ComponentDispatcher = "dispatcher"
	ComponentRegistry   = "registry"
	ComponentCheckpoint = "checkpoint"
	ComponentRPCClient  = "rpc-client"
	ComponentStorage    = "storage"
	ComponentNotifier   = "notifier"
	ComponentAPI        = "api"
	ComponentProtocol   = "protocol"
	ComponentMetrics    = "metrics"
)

var AllComponents = map[string]struct{}{
	ComponentIndexer:    {},
	ComponentDispatcher: {},
	ComponentRegistry:   {},
	ComponentCheckpoint: {},
	ComponentRPCClient:  {},
	ComponentStorage:    {},
	ComponentNotifier:   {},
	ComponentAPI:        {},
	ComponentProtocol:   {},
	ComponentMetrics:    {},
}
