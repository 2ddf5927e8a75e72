// Package service runs the bot's long-lived background loops (queue board,
// settings watcher) and stops them together.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/small-frappuccino/tasbot/pkg/log"
)

// ServiceState represents the current state of a service
type ServiceState int

const (
	StateRegistered ServiceState = iota
	StateRunning
	StateStopped
	StateError
)

func (s ServiceState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Service is a blocking loop. Start returns when ctx is done; a non-nil error
// stops every other service.
type Service interface {
	Name() string
	Start(ctx context.Context) error
}

// ServiceInfo holds metadata about a registered service
type ServiceInfo struct {
	Name          string
	State         ServiceState
	LastStateTime time.Time
	StartTime     *time.Time
	StopTime      *time.Time
	LastError     error
}

// ServiceManager coordinates the lifecycle of all services
type ServiceManager struct {
	mu       sync.RWMutex
	order    []Service
	services map[string]*ServiceInfo
	running  bool
	now      func() time.Time
}

// NewServiceManager creates a new service manager
func NewServiceManager() *ServiceManager {
	return &ServiceManager{services: make(map[string]*ServiceInfo), now: time.Now}
}

// Register adds a service to the manager. Services cannot be added while Run is active.
func (sm *ServiceManager) Register(svc Service) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.running {
		return errors.New("service manager is already running")
	}
	name := svc.Name()
	if _, exists := sm.services[name]; exists {
		return fmt.Errorf("service '%s' is already registered", name)
	}
	sm.order = append(sm.order, svc)
	sm.services[name] = &ServiceInfo{Name: name, State: StateRegistered, LastStateTime: sm.now()}

	log.ApplicationLogger().Info("🧩 Service registered", "service", name)
	return nil
}

// Run starts every service and blocks until all of them returned. The first
// failure cancels the others and is returned.
func (sm *ServiceManager) Run(ctx context.Context) error {
	sm.mu.Lock()
	if sm.running {
		sm.mu.Unlock()
		return errors.New("service manager is already running")
	}
	sm.running = true
	services := append([]Service(nil), sm.order...)
	sm.mu.Unlock()

	defer func() {
		sm.mu.Lock()
		sm.running = false
		sm.mu.Unlock()
	}()

	logger := log.ApplicationLogger()
	logger.Info("🚀 Starting services", "count", len(services))

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			sm.setState(svc.Name(), StateRunning, nil)
			err := svc.Start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				sm.setState(svc.Name(), StateError, err)
				logger.Error("❌ Service failed", "service", svc.Name(), "error", err)
				return fmt.Errorf("service %s: %w", svc.Name(), err)
			}
			sm.setState(svc.Name(), StateStopped, nil)
			logger.Info("🛑 Service stopped", "service", svc.Name())
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		logger.Info("✅ All services stopped")
	}
	return err
}

func (sm *ServiceManager) setState(name string, state ServiceState, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	info, ok := sm.services[name]
	if !ok {
		return
	}
	now := sm.now()
	info.State = state
	info.LastStateTime = now
	switch state {
	case StateRunning:
		info.StartTime = &now
		info.StopTime = nil
	case StateStopped, StateError:
		info.StopTime = &now
	}
	if err != nil {
		info.LastError = err
	}
}

// GetServiceInfo returns a copy of the service's metadata.
func (sm *ServiceManager) GetServiceInfo(name string) (ServiceInfo, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	info, ok := sm.services[name]
	if !ok {
		return ServiceInfo{}, false
	}
	return *info, true
}

// GetAllServices returns metadata for every service, sorted by name.
func (sm *ServiceManager) GetAllServices() []ServiceInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]ServiceInfo, 0, len(sm.services))
	for _, info := range sm.services {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetRunningServices returns the names of running services
func (sm *ServiceManager) GetRunningServices() []string {
	var out []string
	for _, info := range sm.GetAllServices() {
		if info.State == StateRunning {
			out = append(out, info.Name)
		}
	}
	return out
}
