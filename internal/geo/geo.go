package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
)

const earthRadiusKm = 6371.0

var (
	// ErrInvalidPlace is returned for place strings that cannot be parsed.
	ErrInvalidPlace = errors.New("invalid place")
	// ErrNoGeocoderKey is returned when geocoding is attempted without a key.
	ErrNoGeocoderKey = errors.New("geocoder api key is not configured")
)

// BBoxAround returns the bounding box spanning radiusKm around a point,
// clamped to valid coordinates.
func BBoxAround(lat, lon, radiusKm float64) (airquality.BBox, error) {
	if radiusKm <= 0 {
		return airquality.BBox{}, fmt.Errorf("%w: radius must be positive", airquality.ErrInvalidBBox)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return airquality.BBox{}, fmt.Errorf("%w: point %.4f,%.4f out of range", airquality.ErrInvalidBBox, lat, lon)
	}

	dLat := radiusKm / earthRadiusKm * 180 / math.Pi
	dLon := 180.0
	if c := math.Cos(lat * math.Pi / 180); c > 1e-9 {
		dLon = math.Min(dLat/c, 180)
	}

	b := airquality.BBox{
		math.Max(lon-dLon, -180),
		math.Max(lat-dLat, -90),
		math.Min(lon+dLon, 180),
		math.Min(lat+dLat, 90),
	}
	return b, b.Validate()
}

// ParsePlace splits "city,state,country" into a geocoder address. State
// and country are optional.
func ParsePlace(place string) (geocoder.Address, error) {
	parts := strings.Split(place, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) > 3 || parts[0] == "" {
		return geocoder.Address{}, fmt.Errorf("%w: %q", ErrInvalidPlace, place)
	}

	addr := geocoder.Address{City: parts[0]}
	switch len(parts) {
	case 3:
		addr.State, addr.Country = parts[1], parts[2]
	case 2:
		addr.Country = parts[1]
	}
	return addr, nil
}

// LookupFunc resolves an address to coordinates.
type LookupFunc func(addr geocoder.Address) (lat, lon float64, err error)

// the geocoder package keeps its key in a package variable
var keyMu sync.Mutex

func googleLookup(apiKey string) LookupFunc {
	return func(addr geocoder.Address) (float64, float64, error) {
		keyMu.Lock()
		defer keyMu.Unlock()

		geocoder.ApiKey = apiKey
		loc, err := geocoder.Geocoding(addr)
		if err != nil {
			return 0, 0, err
		}
		return loc.Latitude, loc.Longitude, nil
	}
}

// Geocoder turns place names into catalog bounding boxes.
type Geocoder struct {
	apiKey string
	lookup LookupFunc
}

// NewGeocoder returns a Geocoder backed by the Google geocoding API.
func NewGeocoder(apiKey string) *Geocoder {
	return &Geocoder{apiKey: apiKey, lookup: googleLookup(apiKey)}
}

// NewGeocoderWithLookup returns a Geocoder using a custom resolver.
func NewGeocoderWithLookup(lookup LookupFunc) *Geocoder {
	return &Geocoder{apiKey: "custom", lookup: lookup}
}

// BBox resolves place and returns the box spanning radiusKm around it.
func (g *Geocoder) BBox(ctx context.Context, place string, radiusKm float64) (airquality.BBox, error) {
	if g.apiKey == "" {
		return airquality.BBox{}, ErrNoGeocoderKey
	}
	addr, err := ParsePlace(place)
	if err != nil {
		return airquality.BBox{}, err
	}
	if err := ctx.Err(); err != nil {
		return airquality.BBox{}, err
	}

	lat, lon, err := g.lookup(addr)
	if err != nil {
		return airquality.BBox{}, fmt.Errorf("geocoding %q: %w", place, err)
	}
	return BBoxAround(lat, lon, radiusKm)
}
