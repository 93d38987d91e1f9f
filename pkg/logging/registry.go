package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ComponentType groups components by role so default log levels can be
// tuned per layer without touching every call site.
type ComponentType string

const (
	ComponentTypeAPI        ComponentType = "api"
	ComponentTypeWorker     ComponentType = "worker"
	ComponentTypeExpander   ComponentType = "expander"
	ComponentTypeFinalizer  ComponentType = "finalizer"
	ComponentTypeAggregator ComponentType = "aggregator"
	ComponentTypeExtractor  ComponentType = "extractor"
	ComponentTypeDatabase   ComponentType = "database"
	ComponentTypeQueue      ComponentType = "queue"
	ComponentTypeBlob       ComponentType = "blob"
	ComponentTypeMiddleware ComponentType = "middleware"
	ComponentTypeUtility    ComponentType = "utility"
)

// ComponentInfo describes a registered component's logging configuration.
type ComponentInfo struct {
	ID        string
	Type      ComponentType
	LogLevel  log.Level
	Enabled   bool
	Metadata  map[string]interface{}
	CreatedAt int64
}

// ComponentRegistry tracks every component a Factory has handed out a
// logger for, and its effective log level.
type ComponentRegistry struct {
	mu         sync.RWMutex
	components map[string]*ComponentInfo
	logLevels  map[string]log.Level
	types      map[ComponentType][]string
}

// NewComponentRegistry creates an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		components: make(map[string]*ComponentInfo),
		logLevels:  make(map[string]log.Level),
		types:      make(map[ComponentType][]string),
	}
}

// RegisterComponent records a component the first time it is seen;
// re-registration is a no-op so callers can register unconditionally on
// every ForXxx call.
func (cr *ComponentRegistry) RegisterComponent(id string, componentType ComponentType, metadata map[string]interface{}) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if _, exists := cr.components[id]; exists {
		return nil
	}

	info := &ComponentInfo{
		ID:        id,
		Type:      componentType,
		LogLevel:  log.InfoLevel,
		Enabled:   true,
		Metadata:  metadata,
		CreatedAt: time.Now().Unix(),
	}
	cr.components[id] = info
	cr.types[componentType] = append(cr.types[componentType], id)
	return nil
}

// SetComponentLogLevel sets the logging level for a specific component.
func (cr *ComponentRegistry) SetComponentLogLevel(id string, level log.Level) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if _, exists := cr.components[id]; !exists {
		return fmt.Errorf("component not found: %s", id)
	}
	cr.components[id].LogLevel = level
	cr.logLevels[id] = level
	return nil
}

// LoadLogLevelsFromEnv loads component log levels from LOG_LEVEL_<ID> env vars.
func (cr *ComponentRegistry) LoadLogLevelsFromEnv() {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "LOG_LEVEL_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				id := strings.TrimPrefix(parts[0], "LOG_LEVEL_")
				cr.logLevels[id] = parseLogLevel(parts[1])
			}
		}
	}
}

// LoadLogLevelsFromConfig loads component log levels from a config map.
func (cr *ComponentRegistry) LoadLogLevelsFromConfig(componentLogLevels map[string]string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	for id, levelStr := range componentLogLevels {
		cr.logLevels[id] = parseLogLevel(levelStr)
	}
}

// GetComponentLogLevel returns the configured level, or InfoLevel if unset.
func (cr *ComponentRegistry) GetComponentLogLevel(id string) log.Level {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	if level, exists := cr.logLevels[id]; exists {
		return level
	}
	return log.InfoLevel
}

// ListComponentsByType returns all registered components of a given type.
func (cr *ComponentRegistry) ListComponentsByType(componentType ComponentType) []*ComponentInfo {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	var out []*ComponentInfo
	for _, info := range cr.components {
		if info.Type == componentType {
			out = append(out, info)
		}
	}
	return out
}

// ListComponentTypes returns every component type seen so far.
func (cr *ComponentRegistry) ListComponentTypes() []ComponentType {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	types := make([]ComponentType, 0, len(cr.types))
	for t := range cr.types {
		types = append(types, t)
	}
	return types
}

// EnableComponent enables or disables a component's logging.
func (cr *ComponentRegistry) EnableComponent(id string, enabled bool) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if info, exists := cr.components[id]; exists {
		info.Enabled = enabled
		return nil
	}
	return fmt.Errorf("component not found: %s", id)
}

// IsComponentEnabled reports whether a component's logging is enabled.
func (cr *ComponentRegistry) IsComponentEnabled(id string) bool {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	if info, exists := cr.components[id]; exists {
		return info.Enabled
	}
	return false
}

// GetComponentStats summarizes registry contents, useful on an operator
// debug endpoint.
func (cr *ComponentRegistry) GetComponentStats() map[string]interface{} {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	typeCounts := make(map[ComponentType]int)
	for _, info := range cr.components {
		typeCounts[info.Type]++
	}
	return map[string]interface{}{
		"total_components": len(cr.components),
		"total_types":      len(cr.types),
		"by_type":          typeCounts,
	}
}

// GetLoggerForComponent returns baseLogger scoped to component id, with its
// registered level applied (or ErrorLevel if the component is disabled).
func (cr *ComponentRegistry) GetLoggerForComponent(baseLogger *log.Logger, id string) *log.Logger {
	level := cr.GetComponentLogLevel(id)
	enabled := cr.IsComponentEnabled(id)

	logger := baseLogger.With("component", id)
	if !enabled {
		logger.SetLevel(log.ErrorLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

func parseLogLevel(levelStr string) log.Level {
	level, err := log.ParseLevel(levelStr)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
