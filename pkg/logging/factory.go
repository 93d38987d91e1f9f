package logging

import (
	"github.com/charmbracelet/log"
)

// Factory provides component-aware loggers with consistent field naming.
type Factory struct {
	baseLogger        *log.Logger
	componentRegistry *ComponentRegistry
}

// NewFactory creates a new logger factory.
func NewFactory(baseLogger *log.Logger) *Factory {
	return &Factory{
		baseLogger:        baseLogger,
		componentRegistry: NewComponentRegistry(),
	}
}

// NewFactoryWithConfig creates a new logger factory and loads component log
// levels from config.
func NewFactoryWithConfig(baseLogger *log.Logger, componentLogLevels map[string]string) *Factory {
	registry := NewComponentRegistry()
	registry.LoadLogLevelsFromConfig(componentLogLevels)

	return &Factory{
		baseLogger:        baseLogger,
		componentRegistry: registry,
	}
}

// ForAPI creates a logger for the HTTP API layer.
func (lf *Factory) ForAPI(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeAPI, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForWorker creates a logger for worker components.
func (lf *Factory) ForWorker(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeWorker, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForExpander creates a logger for the archive expander.
func (lf *Factory) ForExpander(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeExpander, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForFinalizer creates a logger for the batch finalizer.
func (lf *Factory) ForFinalizer(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeFinalizer, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForAggregator creates a logger for the summary aggregator.
func (lf *Factory) ForAggregator(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeAggregator, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForExtractor creates a logger for text/structured extraction calls.
func (lf *Factory) ForExtractor(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeExtractor, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForDatabase creates a logger for the store layer.
func (lf *Factory) ForDatabase(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeDatabase, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForQueue creates a logger for the Redis job queue.
func (lf *Factory) ForQueue(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeQueue, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForBlob creates a logger for the object storage layer.
func (lf *Factory) ForBlob(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeBlob, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForMiddleware creates a logger for HTTP middleware.
func (lf *Factory) ForMiddleware(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeMiddleware, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// ForComponent creates a logger for anything not covered by a more specific
// ForXxx method above.
func (lf *Factory) ForComponent(id string) *log.Logger {
	_ = lf.componentRegistry.RegisterComponent(id, ComponentTypeUtility, nil)
	return lf.componentRegistry.GetLoggerForComponent(lf.baseLogger, id)
}

// WithContext adds additional context to a logger.
func (lf *Factory) WithContext(logger *log.Logger, key string, value interface{}) *log.Logger {
	return logger.With(key, value)
}

// WithRequestID adds request correlation ID to a logger.
func (lf *Factory) WithRequestID(logger *log.Logger, requestID string) *log.Logger {
	return logger.With("request_id", requestID)
}

// WithError adds error context to a logger.
func (lf *Factory) WithError(logger *log.Logger, err error) *log.Logger {
	if err != nil {
		return logger.With("error", err.Error())
	}
	return logger
}

// WithOperation adds operation context to a logger.
func (lf *Factory) WithOperation(logger *log.Logger, operation string) *log.Logger {
	return logger.With("operation", operation)
}

// GetComponentRegistry returns the component registry for configuration.
func (lf *Factory) GetComponentRegistry() *ComponentRegistry {
	return lf.componentRegistry
}

// SetComponentLogLevel sets the logging level for a specific component.
func (lf *Factory) SetComponentLogLevel(id string, level log.Level) error {
	return lf.componentRegistry.SetComponentLogLevel(id, level)
}

// GetComponentLogLevel gets the logging level for a specific component.
func (lf *Factory) GetComponentLogLevel(id string) log.Level {
	return lf.componentRegistry.GetComponentLogLevel(id)
}

// EnableComponent enables or disables a component.
func (lf *Factory) EnableComponent(id string, enabled bool) error {
	return lf.componentRegistry.EnableComponent(id, enabled)
}

// IsComponentEnabled checks if a component is enabled.
func (lf *Factory) IsComponentEnabled(id string) bool {
	return lf.componentRegistry.IsComponentEnabled(id)
}

// GetComponentStats returns statistics about registered components.
func (lf *Factory) GetComponentStats() map[string]interface{} {
	return lf.componentRegistry.GetComponentStats()
}

// ListComponentTypes returns all registered component types.
func (lf *Factory) ListComponentTypes() []ComponentType {
	return lf.componentRegistry.ListComponentTypes()
}

// ListComponentsByType returns all components of a specific type.
func (lf *Factory) ListComponentsByType(componentType ComponentType) []*ComponentInfo {
	return lf.componentRegistry.ListComponentsByType(componentType)
}

// LoadLogLevelsFromEnv loads component-specific log levels from environment
// variables.
func (lf *Factory) LoadLogLevelsFromEnv() {
	lf.componentRegistry.LoadLogLevelsFromEnv()
}
