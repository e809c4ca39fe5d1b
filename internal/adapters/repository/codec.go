package repository

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// encodeEmbedding renders an embedding as comma-separated decimals.
func encodeEmbedding(v []float64) string {
	var b strings.Builder
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	return b.String()
}

func decodeEmbedding(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []float64{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding value %d: %v", ErrCorrupt, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// unixSeconds converts a timestamp to fractional unix seconds.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second)))).UTC()
}
