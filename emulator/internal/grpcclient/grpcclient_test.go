package grpcclient

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	telemetryv1 "github.com/mujo0401/Fitness-Console/proto/telemetry"
)

// ackServer подтверждает каждые два сэмпла
type ackServer struct {
	telemetryv1.UnimplementedDataServiceServer

	mu       sync.Mutex
	sessions []string
}

func (s *ackServer) PushSamples(stream telemetryv1.DataService_PushSamplesServer) error {
	var count uint64
	for {
		sample, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.sessions = append(s.sessions, sample.GetSessionId())
		s.mu.Unlock()

		count++
		if count%2 == 0 {
			if err := stream.Send(&telemetryv1.Ack{SessionId: sample.GetSessionId(), ReceivedCnt: count}); err != nil {
				return err
			}
		}
	}
}

func (s *ackServer) Analyze(ctx context.Context, req *telemetryv1.AnalyzeRequest) (*telemetryv1.AnalyzeResponse, error) {
	events := make([]*telemetryv1.Event, 0)
	for _, e := range req.GetEntries() {
		events = append(events, &telemetryv1.Event{Date: e.Date, Time: e.Time, Type: "Tachycardia"})
	}
	return &telemetryv1.AnalyzeResponse{Events: events}, nil
}

func newTestClient(t *testing.T, srv *ackServer) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	grpcServer := grpc.NewServer()
	telemetryv1.RegisterDataServiceServer(grpcServer, srv)
	go grpcServer.Serve(lis)
	t.Cleanup(grpcServer.Stop)

	client, err := NewGRPCClient("passthrough:///bufnet", "emu-1",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewGRPCClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPushSamples(t *testing.T) {
	srv := &ackServer{}
	client := newTestClient(t, srv)

	samples := make(chan *telemetryv1.Sample, 5)
	for i := 0; i < 5; i++ {
		samples <- &telemetryv1.Sample{TsMs: uint64(1000 * (i + 1)), Bpm: 72}
	}
	close(samples)

	sent, err := client.PushSamples(context.Background(), samples)
	if err != nil {
		t.Fatalf("PushSamples failed: %v", err)
	}
	if sent != 5 {
		t.Errorf("Expected 5 sent, got %d", sent)
	}
	if client.LastAck() != 4 {
		t.Errorf("Expected last ack 4, got %d", client.LastAck())
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	for _, id := range srv.sessions {
		if id != "emu-1" {
			t.Fatalf("Expected default session id, got %q", id)
		}
	}
}

func TestAnalyze(t *testing.T) {
	client := newTestClient(t, &ackServer{})

	resp, err := client.Analyze(context.Background(), []*telemetryv1.Entry{
		{Date: "2024-01-01", Time: "8:00 AM", Values: []float64{110, 110, 110, 110, 110}},
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(resp.GetEvents()) != 1 || resp.GetEvents()[0].Date != "2024-01-01" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}
