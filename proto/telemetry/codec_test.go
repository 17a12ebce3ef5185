package telemetryv1

import (
	"strings"
	"testing"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	if codec == nil {
		t.Fatal("Expected json codec to be registered")
	}
	if codec.Name() != "json" {
		t.Errorf("Unexpected codec name: %s", codec.Name())
	}
}

func TestCodec_PlainMessages(t *testing.T) {
	codec := jsonCodec{}

	data, err := codec.Marshal(&Sample{SessionId: "s1", TsMs: 1000, Bpm: 72.5})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"s1"`) || !strings.Contains(string(data), `"bpm":72.5`) {
		t.Errorf("Unexpected JSON: %s", data)
	}

	var ack Ack
	if err := codec.Unmarshal([]byte(`{"session_id":"s1","received_cnt":10}`), &ack); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if ack.GetReceivedCnt() != 10 {
		t.Errorf("Expected received_cnt 10, got %d", ack.GetReceivedCnt())
	}
}

func TestCodec_ProtoMessages(t *testing.T) {
	codec := jsonCodec{}

	data, err := codec.Marshal(wrapperspb.String("rhythm"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.TrimSpace(string(data)) != `"rhythm"` {
		t.Errorf("Expected protojson wrapper encoding, got %s", data)
	}

	var v wrapperspb.Int64Value
	if err := codec.Unmarshal([]byte(`"42"`), &v); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if v.GetValue() != 42 {
		t.Errorf("Expected 42, got %d", v.GetValue())
	}
}

func TestNilGetters(t *testing.T) {
	var s *Sample
	var req *AnalyzeRequest
	if s.GetBpm() != 0 || s.GetSessionId() != "" || req.GetEntries() != nil {
		t.Error("Expected zero values from nil receivers")
	}
}
