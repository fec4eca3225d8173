package tracking

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP resolves locations from a MaxMind City database.
type GeoIP struct {
	db *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	return &GeoIP{db: db}, nil
}

// Locate returns empty strings for private, malformed or unknown addresses.
func (g *GeoIP) Locate(ip string) (string, string) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() {
		return "", ""
	}
	rec, err := g.db.City(parsed)
	if err != nil {
		return "", ""
	}
	return rec.Country.IsoCode, rec.City.Names["en"]
}

func (g *GeoIP) Close() error { return g.db.Close() }
