// Package health реализует grpc.health.v1 со статусом по каждому сервису.
package health

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer

	mu       sync.RWMutex
	services map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
	watchers map[string]map[chan grpc_health_v1.HealthCheckResponse_ServingStatus]struct{}
	shutdown bool
}

func NewHealthServer() *HealthServer {
	return &HealthServer{
		services: map[string]grpc_health_v1.HealthCheckResponse_ServingStatus{
			"": grpc_health_v1.HealthCheckResponse_SERVING,
		},
		watchers: make(map[string]map[chan grpc_health_v1.HealthCheckResponse_ServingStatus]struct{}),
	}
}

// Register подключает сервис здоровья к gRPC серверу
func (h *HealthServer) Register(srv *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(srv, h)
}

func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	servingStatus, exists := h.services[req.GetService()]
	if !exists {
		return nil, status.Error(codes.NotFound, "service not found")
	}

	return &grpc_health_v1.HealthCheckResponse{
		Status: servingStatus,
	}, nil
}

// Watch отправляет текущий статус и затем каждое его изменение.
// Для неизвестного сервиса отправляется SERVICE_UNKNOWN.
func (h *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	service := req.GetService()
	updates := make(chan grpc_health_v1.HealthCheckResponse_ServingStatus, 1)

	h.mu.Lock()
	current, exists := h.services[service]
	if !exists {
		current = grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
	}
	if h.watchers[service] == nil {
		h.watchers[service] = make(map[chan grpc_health_v1.HealthCheckResponse_ServingStatus]struct{})
	}
	h.watchers[service][updates] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.watchers[service], updates)
		h.mu.Unlock()
	}()

	updates <- current

	var last grpc_health_v1.HealthCheckResponse_ServingStatus = -1
	for {
		select {
		case s := <-updates:
			if s == last {
				continue
			}
			last = s
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: s}); err != nil {
				return status.Errorf(codes.Canceled, "failed to send health update: %v", err)
			}
		case <-stream.Context().Done():
			return status.Error(codes.Canceled, "stream has ended")
		}
	}
}

func (h *HealthServer) SetServingStatus(service string) {
	h.setStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
}

func (h *HealthServer) SetNotServingStatus(service string) {
	h.setStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Shutdown переводит все сервисы в NOT_SERVING и запрещает дальнейшие изменения
func (h *HealthServer) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.shutdown = true
	for service := range h.services {
		h.notifyLocked(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
}

func (h *HealthServer) setStatus(service string, s grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.shutdown {
		return
	}
	h.notifyLocked(service, s)
}

func (h *HealthServer) notifyLocked(service string, s grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.services[service] = s

	for ch := range h.watchers[service] {
		// Непрочитанное значение заменяется последним
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
