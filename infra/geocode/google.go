// Package geocode provides the reverse-geocoding collaborators behind the
// location controller's Geocoder contract.
package geocode

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/fleetwise/fleetcore/core/model"
)

// GoogleGeocoder resolves coordinates to street addresses with the Google
// Maps API.
type GoogleGeocoder struct {
	client *maps.Client
}

// NewGoogleGeocoder creates a geocoder with the given API key.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleGeocoder{client: client}, nil
}

// Reverse returns the formatted address of the first geocoding result.
func (g *GoogleGeocoder) Reverse(ctx context.Context, p model.LatLng) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil {
		return "", fmt.Errorf("maps api error: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("no address found")
	}
	return results[0].FormattedAddress, nil
}

// Nop is a geocoder that resolves nothing. Used when no API key is
// configured; location writes proceed without addresses.
type Nop struct{}

// Reverse always reports that no address is available.
func (Nop) Reverse(context.Context, model.LatLng) (string, error) {
	return "", fmt.Errorf("geocoding disabled")
}
