package geoip

import (
	"errors"
	"net"

	"github.com/oschwald/geoip2-golang"
)

var ErrUnresolvable = errors.New("geoip: address cannot be located")

type Info struct {
	Country string
	Region  string
	City    string
}

// Locator resolves an address to a location. Implementations are read only
// and safe for concurrent use.
type Locator interface {
	Lookup(ip net.IP) (Info, error)
	Close() error
}

// Open loads the mmdb database at path. The database is read once at startup
// and queried synchronously afterwards. An empty path returns a locator that
// never resolves.
func Open(path string) (Locator, error) {
	if path == "" {
		return Noop{}, nil
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &DB{r: r}, nil
}

// FromBytes is like Open but reads the database from memory.
func FromBytes(b []byte) (Locator, error) {
	r, err := geoip2.FromBytes(b)
	if err != nil {
		return nil, err
	}
	return &DB{r: r}, nil
}

type DB struct {
	r *geoip2.Reader
}

func (db *DB) Lookup(ip net.IP) (Info, error) {
	if !Public(ip) {
		return Info{}, ErrUnresolvable
	}
	x, err := db.r.City(ip)
	if err != nil {
		return Info{}, err
	}
	if x.Country.IsoCode == "" {
		return Info{}, ErrUnresolvable
	}
	var region string
	if len(x.Subdivisions) > 0 {
		region = x.Subdivisions[0].Names["en"]
	}
	return Info{
		Country: x.Country.IsoCode,
		Region:  region,
		City:    x.City.Names["en"],
	}, nil
}

func (db *DB) Close() error {
	return db.r.Close()
}

type Noop struct{}

func (Noop) Lookup(net.IP) (Info, error) { return Info{}, ErrUnresolvable }

func (Noop) Close() error { return nil }

// Public reports whether ip is a globally routable address.
func Public(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !(ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast())
}
