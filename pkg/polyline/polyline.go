// Package polyline encodes and decodes the Encoded Polyline Algorithm Format.
// OpenRouteService emits precision 5 (the Google default) and OSRM emits
// precision 6 when asked for geometries=polyline6.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"fmt"
	"math"
)

// Common precisions.
const (
	Precision5 = 5
	Precision6 = 6
)

// ErrTruncated is returned when the input ends in the middle of a value.
var ErrTruncated = errors.New("polyline: truncated input")

// Coordinate is a decoded vertex.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Decode decodes a precision 5 polyline.
func Decode(encoded string) ([]Coordinate, error) {
	return DecodePrecision(encoded, Precision5)
}

// Decode6 decodes a precision 6 polyline.
func Decode6(encoded string) ([]Coordinate, error) {
	return DecodePrecision(encoded, Precision6)
}

// DecodePrecision decodes a polyline whose values were scaled by 10^precision.
func DecodePrecision(encoded string, precision int) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}
	if precision <= 0 {
		return nil, fmt.Errorf("polyline: invalid precision %d", precision)
	}

	factor := math.Pow10(precision)
	coords := make([]Coordinate, 0, len(encoded)/4)

	var lat, lon, index int
	for index < len(encoded) {
		latDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		lonDelta, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next

		lat += latDelta
		lon += lonDelta
		coords = append(coords, Coordinate{
			Lat: float64(lat) / factor,
			Lon: float64(lon) / factor,
		})
	}

	return coords, nil
}

func decodeValue(encoded string, index int) (int, int, error) {
	var result, shift int

	for {
		if index >= len(encoded) {
			return 0, index, ErrTruncated
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes coordinates at precision 5.
func Encode(coords []Coordinate) string {
	return EncodePrecision(coords, Precision5)
}

// EncodePrecision encodes coordinates scaled by 10^precision.
func EncodePrecision(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	buf := make([]byte, 0, len(coords)*6)

	var prevLat, prevLon int
	for _, c := range coords {
		lat := int(math.Round(c.Lat * factor))
		lon := int(math.Round(c.Lon * factor))

		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lon-prevLon)

		prevLat, prevLon = lat, lon
	}

	return string(buf)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}
