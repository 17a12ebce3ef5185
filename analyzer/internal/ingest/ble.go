package ingest

import (
	"encoding/binary"
	"errors"
)

// Флаги характеристики Heart Rate Measurement (0x2A37)
const (
	flagValueUint16     = 0x01
	flagContactDetected = 0x02
	flagContactSupport  = 0x04
	flagEnergyExpended  = 0x08
	flagRRIntervals     = 0x10
)

var (
	ErrEmptyPayload     = errors.New("empty heart rate measurement payload")
	ErrTruncatedPayload = errors.New("truncated heart rate measurement payload")
)

// Measurement - разобранное уведомление BLE Heart Rate Measurement
type Measurement struct {
	BPM              float64   `json:"bpm"`
	ContactSupported bool      `json:"contact_supported"`
	ContactDetected  bool      `json:"contact_detected"`
	EnergyExpended   *uint16   `json:"energy_expended,omitempty"`
	RRIntervalsMS    []float64 `json:"rr_intervals_ms,omitempty"`
}

// ParseHeartRateMeasurement разбирает payload по GATT Heart Rate Service.
// Значение пульса: UINT8 или UINT16 little-endian в зависимости от бита 0.
// RR-интервалы передаются в единицах 1/1024 с.
func ParseHeartRateMeasurement(payload []byte) (Measurement, error) {
	var m Measurement
	if len(payload) == 0 {
		return m, ErrEmptyPayload
	}

	flags := payload[0]
	offset := 1

	if flags&flagValueUint16 != 0 {
		if len(payload) < offset+2 {
			return m, ErrTruncatedPayload
		}
		m.BPM = float64(binary.LittleEndian.Uint16(payload[offset:]))
		offset += 2
	} else {
		if len(payload) < offset+1 {
			return m, ErrTruncatedPayload
		}
		m.BPM = float64(payload[offset])
		offset++
	}

	m.ContactSupported = flags&flagContactSupport != 0
	m.ContactDetected = m.ContactSupported && flags&flagContactDetected != 0

	if flags&flagEnergyExpended != 0 {
		if len(payload) < offset+2 {
			return m, ErrTruncatedPayload
		}
		energy := binary.LittleEndian.Uint16(payload[offset:])
		m.EnergyExpended = &energy
		offset += 2
	}

	if flags&flagRRIntervals != 0 {
		for ; offset+1 < len(payload); offset += 2 {
			raw := binary.LittleEndian.Uint16(payload[offset:])
			m.RRIntervalsMS = append(m.RRIntervalsMS, float64(raw)*1000/1024)
		}
	}

	return m, nil
}
