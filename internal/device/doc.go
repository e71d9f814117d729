// Package device defines the contract between the controller and keyboard LED
// hardware, plus a small set of drivers.
//
// A driver is looked up by name through Open:
//
//	id, _ := device.ParseIdentifier("sysfs:kbd_backlight")
//	h, err := device.Open(id, device.ModelMK750, logger)
//
// Built-in drivers:
//
//	noop   accepts every call and drives nothing
//	sysfs  Linux multicolor LED class device (/sys/class/leds/<name>)
//
// The memory driver in the memory subpackage registers itself as "memory"
// when imported.
//
// Wire-level HID encoding and USB enumeration are not handled here.
package device
