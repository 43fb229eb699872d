//go:build linux && cgo

// Package usbid looks up vendor, product and interface class names in the
// usb.ids database shipped with usbutils.
//
// The uac2ctl tool uses it to label the headsets it finds and the audio
// interfaces they expose.
//
//	db := usbid.New()
//	db.Load()
//	fmt.Println(db.Describe(0x1209, 0x5201))
//	class, sub, proto := db.LookupClass(0x01, 0x02, 0x20)
//
// Files are parsed with gousb's usbid parser and searched in DefaultPaths
// order. When no file is found, the tables compiled into gousb are used.
// Describe falls back to hex IDs for anything neither source knows.
//
// All methods are safe for concurrent use.
package usbid
