// Package telemetryv1 описывает сообщения и gRPC-сервис rhythm.v1.DataService.
//
// Сообщения передаются через кодек "json" (content-subtype application/grpc+json),
// поэтому сгенерированный protobuf-код не требуется.
package telemetryv1

// Sample - одно измерение пульса от устройства или эмулятора
type Sample struct {
	SessionId string  `json:"session_id"`
	TsMs      uint64  `json:"ts_ms"`
	Bpm       float64 `json:"bpm"`
}

func (x *Sample) GetSessionId() string {
	if x != nil {
		return x.SessionId
	}
	return ""
}

func (x *Sample) GetTsMs() uint64 {
	if x != nil {
		return x.TsMs
	}
	return 0
}

func (x *Sample) GetBpm() float64 {
	if x != nil {
		return x.Bpm
	}
	return 0
}

// Ack подтверждает получение сэмплов потока
type Ack struct {
	SessionId   string `json:"session_id"`
	ReceivedCnt uint64 `json:"received_cnt"`
}

func (x *Ack) GetReceivedCnt() uint64 {
	if x != nil {
		return x.ReceivedCnt
	}
	return 0
}

// Entry - окно измерений пульса для разового анализа
type Entry struct {
	Date   string    `json:"date"`
	Time   string    `json:"time"`
	Values []float64 `json:"values"`
}

type AnalyzeRequest struct {
	Entries []*Entry `json:"entries"`
}

func (x *AnalyzeRequest) GetEntries() []*Entry {
	if x != nil {
		return x.Entries
	}
	return nil
}

type HRVMetrics struct {
	Rmssd float64 `json:"rmssd"`
	Sdnn  float64 `json:"sdnn"`
	Pnn50 float64 `json:"pnn50"`
	Sd1   float64 `json:"sd1,omitempty"`
	Sd2   float64 `json:"sd2,omitempty"`
}

type Event struct {
	Date       string      `json:"date"`
	Time       string      `json:"time"`
	Type       string      `json:"type"`
	Value      string      `json:"value"`
	Severity   string      `json:"severity"`
	Details    string      `json:"details"`
	HrvMetrics *HRVMetrics `json:"hrv_metrics"`
}

type AnalyzeResponse struct {
	Events []*Event `json:"events"`
}

func (x *AnalyzeResponse) GetEvents() []*Event {
	if x != nil {
		return x.Events
	}
	return nil
}
