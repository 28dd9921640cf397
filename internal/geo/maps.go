package geo

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// bboxDelta is the half-size of the embedded map's bounding box in degrees
// (about 1.1 km of latitude).
const bboxDelta = 0.01

const osmBase = "https://www.openstreetmap.org"

// EmbedURL returns an OpenStreetMap iframe URL centred on p with a marker.
func EmbedURL(p Point) string {
	bbox := fmt.Sprintf("%.5f,%.5f,%.5f,%.5f",
		p.Lon-bboxDelta, p.Lat-bboxDelta, p.Lon+bboxDelta, p.Lat+bboxDelta)
	return osmBase + "/export/embed.html?bbox=" + url.QueryEscape(bbox) +
		"&layer=mapnik&marker=" + url.QueryEscape(coord(p.Lat)+","+coord(p.Lon))
}

// ViewURL links to the full OpenStreetMap page at zoom 15.
func ViewURL(p Point) string {
	lat, lon := url.QueryEscape(coord(p.Lat)), url.QueryEscape(coord(p.Lon))
	return osmBase + "/?mlat=" + lat + "&mlon=" + lon + "#map=15/" + lat + "/" + lon
}

// SearchURL is the fallback link when a location cannot be placed.
func SearchURL(location string) string {
	return osmBase + "/search?query=" + url.QueryEscape(strings.TrimSpace(location))
}

// Platform selects a family of native map links.
type Platform string

const (
	PlatformApple  Platform = "apple"
	PlatformGoogle Platform = "google"
)

// PlatformLink returns a deep link to the platform's map app for a
// location text.
func PlatformLink(platform Platform, location string) string {
	q := url.QueryEscape(strings.TrimSpace(location))
	if platform == PlatformApple {
		return "https://maps.apple.com/?q=" + q
	}
	return "https://www.google.com/maps/search/?api=1&query=" + q
}

func coord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
