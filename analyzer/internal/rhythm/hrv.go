// Package rhythm вычисляет метрики вариабельности сердечного ритма (HRV)
// и классифицирует окна измерений пульса по правилам нарушений ритма.
//
// Все функции чистые и безопасны для конкурентного вызова.
package rhythm

import (
	"math"
	"strconv"
)

const (
	msPerMinute = 60000.0

	// Минимальное число RR-интервалов для RMSSD/SDNN/pNN50
	minRRForMetrics = 3
	// SD1/SD2 считаются только при len(rr) > poincareMinRR
	poincareMinRR = 20
	// Порог pNN50, мс
	nn50ThresholdMS = 50.0
)

// RRIntervals преобразует последовательность BPM в абсолютные разности
// соседних межударных интервалов (мс). Пары с неположительным значением
// пропускаются без интерполяции.
func RRIntervals(bpm []float64) []float64 {
	if len(bpm) < 2 {
		return nil
	}

	rr := make([]float64, 0, len(bpm)-1)
	for i := 1; i < len(bpm); i++ {
		if bpm[i-1] > 0 && bpm[i] > 0 {
			rr = append(rr, math.Abs(msPerMinute/bpm[i]-msPerMinute/bpm[i-1]))
		}
	}
	return rr
}

// successiveDiffs возвращает |rr[k]-rr[k-1]|
func successiveDiffs(rr []float64) []float64 {
	if len(rr) < 2 {
		return nil
	}

	diffs := make([]float64, len(rr)-1)
	for k := 1; k < len(rr); k++ {
		diffs[k-1] = math.Abs(rr[k] - rr[k-1])
	}
	return diffs
}

// RMSSD - корень из среднего квадрата последовательных разностей
func RMSSD(rr []float64) float64 {
	diffs := successiveDiffs(rr)
	if len(diffs) == 0 {
		return 0
	}

	var sum float64
	for _, d := range diffs {
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(diffs)))
}

// SDNN - выборочное стандартное отклонение (n-1)
func SDNN(rr []float64) float64 {
	return stdev(rr)
}

// PNN50 - процент последовательных разностей больше 50 мс
func PNN50(rr []float64) float64 {
	diffs := successiveDiffs(rr)
	if len(diffs) == 0 {
		return 0
	}

	count := 0
	for _, d := range diffs {
		if d > nn50ThresholdMS {
			count++
		}
	}
	return 100 * float64(count) / float64(len(diffs))
}

// Poincare возвращает SD1 и SD2 диаграммы Пуанкаре.
// При len(rr) < 2 возвращает (0, 0).
func Poincare(rr []float64) (sd1, sd2 float64) {
	if len(rr) < 2 {
		return 0, 0
	}

	n := len(rr) - 1
	minus := make([]float64, n)
	plus := make([]float64, n)
	for i := 0; i < n; i++ {
		x, y := rr[i], rr[i+1]
		minus[i] = y - x
		plus[i] = y + x
	}

	return math.Sqrt(variance(minus) / 2), math.Sqrt(variance(plus) / 2)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance - выборочная дисперсия, 0 при len < 2
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

func stdev(xs []float64) float64 {
	return math.Sqrt(variance(xs))
}

// round2 округляет до двух знаков по десятичной записи двоичного значения
func round2(x float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 2, 64), 64)
	if err != nil {
		return x
	}
	return r
}

// entryMetrics - метрики окна до округления
type entryMetrics struct {
	rr       []float64
	computed bool
	rmssd    float64
	sdnn     float64
	pnn50    float64
	sd1      float64
	sd2      float64
	poincare bool
}

func computeMetrics(rr []float64) entryMetrics {
	m := entryMetrics{rr: rr}
	if len(rr) < minRRForMetrics {
		return m
	}

	m.computed = true
	m.rmssd = RMSSD(rr)
	m.sdnn = SDNN(rr)
	m.pnn50 = PNN50(rr)

	if len(rr) > poincareMinRR {
		m.poincare = true
		m.sd1, m.sd2 = Poincare(rr)
	}
	return m
}

// snapshot возвращает округлённые метрики для события
func (m entryMetrics) snapshot(withPoincare bool) HRVMetrics {
	out := HRVMetrics{
		RMSSD: round2(m.rmssd),
		SDNN:  round2(m.sdnn),
		PNN50: round2(m.pnn50),
	}
	if withPoincare {
		out.SD1 = round2(m.sd1)
		out.SD2 = round2(m.sd2)
	}
	return out
}
