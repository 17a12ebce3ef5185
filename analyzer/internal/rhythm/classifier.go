package rhythm

import (
	"fmt"
	"math"
	"strconv"
)

const (
	runLength = 5

	tachycardiaBPM     = 100.0
	tachycardiaHighBPM = 120.0
	bradycardiaBPM     = 50.0
	bradycardiaHighBPM = 40.0

	suddenChangeBPM     = 30.0
	suddenChangeHighBPM = 40.0

	lowHRVMinRR  = 10
	lowHRVSDNNMS = 20.0

	afibMinRR       = 20
	afibCoVPercent  = 15.0
	afibSDRatio     = 0.8
	ectopicShort    = 0.8
	ectopicLong     = 1.2
	ectopicMinCount = 3
	ectopicHigh     = 10
)

var eventDetails = map[EventType]string{
	EventTachycardia:   "Heart rate stayed above 100 BPM for several consecutive readings. Sustained elevation at rest can follow stress, dehydration, illness or stimulants.",
	EventBradycardia:   "Heart rate stayed below 50 BPM for several consecutive readings. This is common in trained athletes and during sleep, otherwise it may need attention.",
	EventSuddenChange:  "Sudden heart rate changes can be normal during exercise or stress, but unexpected shifts may require attention.",
	EventLowHRV:        "Reduced heart rate variability can reflect fatigue, stress or incomplete recovery.",
	EventPotentialAFib: "Beat-to-beat intervals were highly irregular. This is a screening heuristic, not a diagnosis; consult a clinician if it keeps recurring.",
	EventEctopicBeats:  "A short interval followed by a long pause suggests premature beats with a compensatory pause. Occasional ectopic beats are common.",
}

// Details возвращает пояснение для типа события
func Details(t EventType) string {
	return eventDetails[t]
}

// DetectAbnormalRhythms анализирует окна по порядку и возвращает
// события в порядке окон, внутри окна - в порядке правил.
func DetectAbnormalRhythms(entries []HeartRateEntry) []AbnormalEvent {
	events := make([]AbnormalEvent, 0)
	for _, entry := range entries {
		analysis := AnalyzeEntry(entry)
		events = append(events, analysis.Events...)
	}
	return events
}

// AnalyzeEntry вычисляет метрики окна и применяет правила классификации.
// Окна с менее чем двумя значениями не анализируются.
func AnalyzeEntry(entry HeartRateEntry) EntryAnalysis {
	result := EntryAnalysis{
		Entry:  entry,
		Events: make([]AbnormalEvent, 0),
	}

	values := entry.Values
	if len(values) < 2 {
		return result
	}

	rr := RRIntervals(values)
	m := computeMetrics(rr)

	result.RRCount = len(rr)
	result.MetricsComputed = m.computed
	result.Metrics = m.snapshot(m.poincare)

	c := classifier{entry: entry, metrics: m}
	c.tachycardia(values)
	c.bradycardia(values)
	c.suddenChanges(values)
	c.lowHRV()
	c.potentialAFib()
	c.ectopicBeats()

	result.Events = append(result.Events, c.events...)
	return result
}

type classifier struct {
	entry   HeartRateEntry
	metrics entryMetrics
	events  []AbnormalEvent
}

func (c *classifier) emit(t EventType, value string, severity Severity) {
	c.events = append(c.events, AbnormalEvent{
		Date:       c.entry.Date,
		Time:       c.entry.Time,
		Type:       t,
		Value:      value,
		Severity:   severity,
		Details:    Details(t),
		HRVMetrics: c.metrics.snapshot(t == EventPotentialAFib),
	})
}

// firstRun возвращает значение, на котором счётчик подряд идущих
// подходящих значений впервые достиг runLength.
func firstRun(values []float64, match func(float64) bool) (float64, bool) {
	run := 0
	for _, v := range values {
		if !match(v) {
			run = 0
			continue
		}
		run++
		if run == runLength {
			return v, true
		}
	}
	return 0, false
}

func (c *classifier) tachycardia(values []float64) {
	v, ok := firstRun(values, func(x float64) bool { return x > tachycardiaBPM })
	if !ok {
		return
	}
	severity := SeverityHigh
	if v < tachycardiaHighBPM {
		severity = SeverityMedium
	}
	c.emit(EventTachycardia, formatBPM(v)+" BPM sustained", severity)
}

func (c *classifier) bradycardia(values []float64) {
	v, ok := firstRun(values, func(x float64) bool { return x < bradycardiaBPM })
	if !ok {
		return
	}
	severity := SeverityHigh
	if v > bradycardiaHighBPM {
		severity = SeverityMedium
	}
	c.emit(EventBradycardia, formatBPM(v)+" BPM sustained", severity)
}

func (c *classifier) suddenChanges(values []float64) {
	for i := 1; i < len(values); i++ {
		change := math.Abs(values[i] - values[i-1])
		if change <= suddenChangeBPM {
			continue
		}
		severity := SeverityHigh
		if change < suddenChangeHighBPM {
			severity = SeverityMedium
		}
		c.emit(EventSuddenChange, "Change of "+formatBPM(change)+" BPM", severity)
	}
}

func (c *classifier) lowHRV() {
	if len(c.metrics.rr) < lowHRVMinRR || !c.metrics.computed {
		return
	}
	if c.metrics.sdnn < lowHRVSDNNMS {
		c.emit(EventLowHRV, fmt.Sprintf("SDNN: %.1f ms", c.metrics.sdnn), SeverityMedium)
	}
}

func (c *classifier) potentialAFib() {
	rr := c.metrics.rr
	if len(rr) <= afibMinRR {
		return
	}

	var ratio float64
	if c.metrics.sd2 != 0 {
		ratio = c.metrics.sd1 / c.metrics.sd2
	}

	var cov float64
	if m := mean(rr); m != 0 {
		cov = 100 * stdev(rr) / m
	}

	if cov > afibCoVPercent && ratio > afibSDRatio {
		c.emit(EventPotentialAFib,
			fmt.Sprintf("RR variability: %.1f%%, SD1/SD2: %.2f", cov, ratio),
			SeverityHigh)
	}
}

// ectopicBeats считает паттерны "короткий-длинный" относительно rr[i-2]
func (c *classifier) ectopicBeats() {
	rr := c.metrics.rr
	count := 0
	for i := 2; i < len(rr); i++ {
		ref := rr[i-2]
		if rr[i-1] < ectopicShort*ref && rr[i] > ectopicLong*ref {
			count++
		}
	}
	if count <= ectopicMinCount {
		return
	}
	severity := SeverityHigh
	if count < ectopicHigh {
		severity = SeverityMedium
	}
	c.emit(EventEctopicBeats, strconv.Itoa(count)+" detected", severity)
}

// formatBPM печатает значение в кратчайшей форме: 110, 72.5
func formatBPM(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
