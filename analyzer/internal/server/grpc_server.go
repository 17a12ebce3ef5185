package server

import (
	"context"
	"errors"
	"io"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/config"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
	telemetryv1 "github.com/mujo0401/Fitness-Console/proto/telemetry"
)

// maxAnalyzeEntries ограничивает размер разового запроса Analyze
const maxAnalyzeEntries = 10000

// SampleAdder принимает сэмплы потока (batch.Batcher)
type SampleAdder interface {
	Add(sample *telemetryv1.Sample) error
}

// DataServer реализует telemetryv1.DataServiceServer
type DataServer struct {
	telemetryv1.UnimplementedDataServiceServer
	cfg     *config.Config
	batcher SampleAdder
}

func NewDataServer(cfg *config.Config, batcher SampleAdder) *DataServer {
	return &DataServer{
		cfg:     cfg,
		batcher: batcher,
	}
}

// PushSamples читает поток сэмплов и отправляет Ack каждые AckEveryN принятых.
// В Ack передается число сэмплов, принятых по сессии последнего сэмпла.
func (s *DataServer) PushSamples(stream telemetryv1.DataService_PushSamplesServer) error {
	log.Printf("[INFO] New PushSamples stream started")

	ackEvery := uint64(s.cfg.AckEveryN)
	if ackEvery == 0 {
		ackEvery = 1
	}

	var totalReceived uint64
	sessionCounters := make(map[string]uint64)

	for {
		sample, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("[INFO] PushSamples stream finished normally: received=%d", totalReceived)
				return nil
			}
			if stream.Context().Err() != nil {
				log.Printf("[INFO] PushSamples stream context cancelled")
				return stream.Context().Err()
			}
			log.Printf("[ERROR] Failed to receive sample: %v", err)
			return err
		}

		if err := s.batcher.Add(sample); err != nil {
			log.Printf("[WARN] Failed to process sample: %v", err)
			continue
		}

		totalReceived++
		sessionCounters[sample.GetSessionId()]++

		if totalReceived%ackEvery != 0 {
			continue
		}

		ack := &telemetryv1.Ack{
			SessionId:   sample.GetSessionId(),
			ReceivedCnt: sessionCounters[sample.GetSessionId()],
		}
		if err := stream.Send(ack); err != nil {
			log.Printf("[ERROR] Failed to send ack: %v", err)
			return err
		}
	}
}

// Analyze выполняет разовый анализ переданных окон
func (s *DataServer) Analyze(ctx context.Context, req *telemetryv1.AnalyzeRequest) (*telemetryv1.AnalyzeResponse, error) {
	if len(req.GetEntries()) > maxAnalyzeEntries {
		return nil, status.Errorf(codes.InvalidArgument, "too many entries: %d (max %d)", len(req.GetEntries()), maxAnalyzeEntries)
	}

	entries := make([]rhythm.HeartRateEntry, 0, len(req.GetEntries()))
	for _, e := range req.GetEntries() {
		if e == nil {
			continue
		}
		entries = append(entries, rhythm.HeartRateEntry{
			Date:   e.Date,
			Time:   e.Time,
			Values: e.Values,
		})
	}

	events := rhythm.DetectAbnormalRhythms(entries)

	resp := &telemetryv1.AnalyzeResponse{
		Events: make([]*telemetryv1.Event, 0, len(events)),
	}
	for _, e := range events {
		resp.Events = append(resp.Events, toWireEvent(e))
	}

	return resp, nil
}

func toWireEvent(e rhythm.AbnormalEvent) *telemetryv1.Event {
	return &telemetryv1.Event{
		Date:     e.Date,
		Time:     e.Time,
		Type:     string(e.Type),
		Value:    e.Value,
		Severity: string(e.Severity),
		Details:  e.Details,
		HrvMetrics: &telemetryv1.HRVMetrics{
			Rmssd: e.HRVMetrics.RMSSD,
			Sdnn:  e.HRVMetrics.SDNN,
			Pnn50: e.HRVMetrics.PNN50,
			Sd1:   e.HRVMetrics.SD1,
			Sd2:   e.HRVMetrics.SD2,
		},
	}
}
