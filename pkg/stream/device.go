package stream

import "strings"

// Device is the class of client the scoring rubric is parameterized on.
type Device int

const (
	DeviceWeb Device = iota
	DeviceTV
	DeviceMobile
)

func (d Device) String() string {
	switch d {
	case DeviceTV:
		return "tv"
	case DeviceMobile:
		return "mobile"
	}
	return "web"
}

var tvTokens = []string{
	"smart-tv",
	"smarttv",
	"tizen",
	"webos",
	"vidaa",
	"roku",
	"fire tv",
	"fire-tv",
	"firetv",
	"android tv",
	"android-tv",
	"androidtv",
	"chromecast",
	"crkey",
	"shield",
	"lg browser",
	"bravia",
}

var mobileTokens = []string{
	"android",
	"iphone",
	"ipad",
	"mobile",
	"phone",
}

// DetectDevice derives the device class from a User-Agent string.
// Pure and deterministic, no I/O. TV tokens win over mobile tokens because
// Android TV user agents contain "android".
func DetectDevice(userAgent string) Device {
	ua := strings.ToLower(userAgent)
	for _, token := range tvTokens {
		if strings.Contains(ua, token) {
			return DeviceTV
		}
	}
	for _, token := range mobileTokens {
		if strings.Contains(ua, token) {
			return DeviceMobile
		}
	}
	return DeviceWeb
}
