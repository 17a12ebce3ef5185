package rhythm

// HeartRateEntry - окно последовательных измерений пульса (BPM).
// Date и Time - непрозрачные метки, которые копируются в события.
type HeartRateEntry struct {
	Date   string    `json:"date"`
	Time   string    `json:"time"`
	Values []float64 `json:"values"`
}

// EventType - тип обнаруженного нарушения ритма
type EventType string

const (
	EventTachycardia   EventType = "Tachycardia"
	EventBradycardia   EventType = "Bradycardia"
	EventSuddenChange  EventType = "Sudden change"
	EventLowHRV        EventType = "Low HRV"
	EventPotentialAFib EventType = "Potential AFib"
	EventEctopicBeats  EventType = "Ectopic Beats"
)

// EventTypes перечисляет все типы событий в порядке проверки правил
var EventTypes = []EventType{
	EventTachycardia,
	EventBradycardia,
	EventSuddenChange,
	EventLowHRV,
	EventPotentialAFib,
	EventEctopicBeats,
}

// Valid сообщает, относится ли тип к известному набору
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Severity string

const (
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// HRVMetrics - метрики вариабельности ритма в миллисекундах (pNN50 в процентах).
// SD1/SD2 заполняются только для событий Potential AFib.
type HRVMetrics struct {
	RMSSD float64 `json:"rmssd"`
	SDNN  float64 `json:"sdnn"`
	PNN50 float64 `json:"pnn50"`
	SD1   float64 `json:"sd1,omitempty"`
	SD2   float64 `json:"sd2,omitempty"`
}

// AbnormalEvent - одно обнаруженное нарушение ритма
type AbnormalEvent struct {
	Date       string     `json:"date"`
	Time       string     `json:"time"`
	Type       EventType  `json:"type"`
	Value      string     `json:"value"`
	Severity   Severity   `json:"severity"`
	Details    string     `json:"details"`
	HRVMetrics HRVMetrics `json:"hrv_metrics"`
}

// EntryAnalysis - результат анализа одного окна
type EntryAnalysis struct {
	Entry           HeartRateEntry  `json:"entry"`
	RRCount         int             `json:"rr_count"`
	MetricsComputed bool            `json:"metrics_computed"`
	Metrics         HRVMetrics      `json:"metrics"`
	Events          []AbnormalEvent `json:"events"`
}
