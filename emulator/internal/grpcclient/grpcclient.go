package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	telemetryv1 "github.com/mujo0401/Fitness-Console/proto/telemetry"
)

type GRPCClient struct {
	client    telemetryv1.DataServiceClient
	conn      *grpc.ClientConn
	sessionID string

	mu      sync.Mutex
	lastAck uint64
}

func NewGRPCClient(serverAddr, sessionID string, opts ...grpc.DialOption) (*GRPCClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	conn, err := grpc.NewClient(serverAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server: %w", err)
	}

	return &GRPCClient{
		client:    telemetryv1.NewDataServiceClient(conn),
		conn:      conn,
		sessionID: sessionID,
	}, nil
}

// PushSamples отправляет значения пульса из канала до его закрытия
// и дожидается последних подтверждений сервера.
func (g *GRPCClient) PushSamples(ctx context.Context, samples <-chan *telemetryv1.Sample) (int, error) {
	stream, err := g.client.PushSamples(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create stream: %w", err)
	}

	acksDone := make(chan error, 1)
	go func() {
		acksDone <- g.receiveAcks(stream)
	}()

	sent := 0
	for sample := range samples {
		if sample.SessionId == "" {
			sample.SessionId = g.sessionID
		}
		if err := stream.Send(sample); err != nil {
			return sent, fmt.Errorf("failed to send sample: %w", err)
		}
		sent++
	}

	if err := stream.CloseSend(); err != nil {
		return sent, fmt.Errorf("failed to close stream: %w", err)
	}

	if err := <-acksDone; err != nil {
		return sent, err
	}
	return sent, nil
}

func (g *GRPCClient) receiveAcks(stream telemetryv1.DataService_PushSamplesClient) error {
	for {
		ack, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to receive ack: %w", err)
		}

		g.mu.Lock()
		g.lastAck = ack.GetReceivedCnt()
		g.mu.Unlock()

		log.Printf("[INFO] Received ack for session %s: received_cnt=%d", ack.SessionId, ack.ReceivedCnt)
	}
}

// LastAck возвращает счетчик из последнего подтверждения
func (g *GRPCClient) LastAck() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAck
}

// Analyze отправляет окна на разовый анализ
func (g *GRPCClient) Analyze(ctx context.Context, entries []*telemetryv1.Entry) (*telemetryv1.AnalyzeResponse, error) {
	resp, err := g.client.Analyze(ctx, &telemetryv1.AnalyzeRequest{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("analyze failed: %w", err)
	}
	return resp, nil
}

func (g *GRPCClient) Close() error {
	return g.conn.Close()
}
