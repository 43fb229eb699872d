//go:build linux && cgo

package usbid

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/gousb"
	gousbid "github.com/google/gousb/usbid"

	"github.com/ardnew/usbheadset/pkg"
)

// DefaultPaths lists the standard locations of usb.ids.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// BuiltinSource is reported by Source when no usb.ids file was found and
// the tables compiled into gousb are used instead.
const BuiltinSource = "builtin"

// Database holds the vendor, product and interface class names of usb.ids.
type Database struct {
	mutex   sync.RWMutex
	paths   []string
	loaded  bool
	source  string
	vendors map[gousb.ID]*gousbid.Vendor
	classes map[gousb.Class]*gousbid.Class
}

// New returns a database that searches DefaultPaths.
func New() *Database {
	return NewWithPaths(DefaultPaths)
}

// NewWithPaths returns a database that searches paths in order.
func NewWithPaths(paths []string) *Database {
	return &Database{
		paths:   paths,
		vendors: make(map[gousb.ID]*gousbid.Vendor),
		classes: make(map[gousb.Class]*gousbid.Class),
	}
}

// Load parses the first readable file of the search paths. Later calls do
// nothing. It returns false when no file could be read; the database then
// holds the tables compiled into gousb.
func (db *Database) Load() bool {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.loaded {
		return db.source != BuiltinSource
	}
	db.loaded = true

	for _, path := range db.paths {
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		err = db.parse(file)
		file.Close()
		if err != nil {
			pkg.LogWarn(pkg.ComponentHost, "usb.ids parse failed", "path", path, "error", err)
			continue
		}
		db.source = path
		pkg.LogDebug(pkg.ComponentHost, "usb.ids loaded",
			"path", path,
			"vendors", len(db.vendors),
			"classes", len(db.classes))
		return true
	}

	db.merge(gousbid.Vendors, gousbid.Classes)
	db.source = BuiltinSource
	pkg.LogDebug(pkg.ComponentHost, "usb.ids not found, using builtin tables",
		"vendors", len(db.vendors),
		"updated", gousbid.LastUpdate)
	return false
}

// Parse merges usb.ids content read from r into the database.
func (db *Database) Parse(r io.Reader) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.loaded = true
	if db.source == "" {
		db.source = "reader"
	}
	return db.parse(r)
}

// parse must be called with the mutex held.
func (db *Database) parse(r io.Reader) error {
	vendors, classes, err := gousbid.ParseIDs(r)
	if err != nil {
		return fmt.Errorf("usb.ids: %w", err)
	}
	db.merge(vendors, classes)
	return nil
}

// merge copies entries so the database never aliases gousb's global tables.
func (db *Database) merge(vendors map[gousb.ID]*gousbid.Vendor, classes map[gousb.Class]*gousbid.Class) {
	for id, v := range vendors {
		db.vendors[id] = v
	}
	for id, c := range classes {
		db.classes[id] = c
	}
}

// LookupVendor returns the vendor name of vid, or "".
func (db *Database) LookupVendor(vid uint16) string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if v, ok := db.vendors[gousb.ID(vid)]; ok {
		return v.Name
	}
	return ""
}

// LookupProduct returns the product name of vid:pid, or "".
func (db *Database) LookupProduct(vid, pid uint16) string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	v, ok := db.vendors[gousb.ID(vid)]
	if !ok {
		return ""
	}
	if p, ok := v.Product[gousb.ID(pid)]; ok {
		return p.Name
	}
	return ""
}

// LookupClass returns the names of an interface class triple. Unknown
// levels are "".
func (db *Database) LookupClass(class, subclass, protocol uint8) (string, string, string) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	c, ok := db.classes[gousb.Class(class)]
	if !ok {
		return "", "", ""
	}
	s, ok := c.SubClass[gousb.Class(subclass)]
	if !ok {
		return c.Name, "", ""
	}
	return c.Name, s.Name, s.Protocol[gousb.Protocol(protocol)]
}

// Describe returns "Vendor Product" for vid:pid, falling back to the hex
// IDs for unknown parts.
func (db *Database) Describe(vid, pid uint16) string {
	vendor := db.LookupVendor(vid)
	if vendor == "" {
		vendor = fmt.Sprintf("%04x", vid)
	}
	product := db.LookupProduct(vid, pid)
	if product == "" {
		product = fmt.Sprintf("%04x", pid)
	}
	return vendor + " " + product
}

// Source returns the path the database was loaded from, BuiltinSource, or
// "" before loading.
func (db *Database) Source() string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.source
}

// VendorCount returns the number of vendors loaded.
func (db *Database) VendorCount() int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.vendors)
}

// ProductCount returns the number of products loaded.
func (db *Database) ProductCount() int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	n := 0
	for _, v := range db.vendors {
		n += len(v.Product)
	}
	return n
}
