package models

import "strings"

// Location is a resolved place. Latitude is within [-90,90] and longitude
// within [-180,180]; see validation.ValidateCoordinates.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"displayName"`
}

// ShortName returns the display name up to the first comma ("Tampa, Florida, US" -> "Tampa").
func (l Location) ShortName() string {
	name, _, _ := strings.Cut(l.DisplayName, ",")
	return strings.TrimSpace(name)
}

// LocationQuery is what a consumer asks the dashboard for: free text
// (place name or postal code) or already-resolved coordinates.
type LocationQuery struct {
	Text        string    `json:"text,omitempty"`
	Coordinates *Location `json:"coordinates,omitempty"`
}

// TextQuery builds a free-text query.
func TextQuery(text string) LocationQuery {
	return LocationQuery{Text: strings.TrimSpace(text)}
}

// CoordinateQuery builds a resolved query.
func CoordinateQuery(lat, lon float64, displayName string) LocationQuery {
	return LocationQuery{Coordinates: &Location{Latitude: lat, Longitude: lon, DisplayName: displayName}}
}

// IsText reports whether the query still needs geocoding.
func (q LocationQuery) IsText() bool {
	return q.Coordinates == nil
}

func (q LocationQuery) String() string {
	if q.Coordinates != nil {
		if q.Coordinates.DisplayName != "" {
			return q.Coordinates.DisplayName
		}
		return formatCoords(q.Coordinates.Latitude, q.Coordinates.Longitude)
	}
	return q.Text
}
