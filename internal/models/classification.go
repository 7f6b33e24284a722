package models

import "strings"

// App is the application-level protocol label.
type App uint8

const (
	AppUnknown App = iota
	AppHTTP
	AppHTTPS
	AppDNS
	AppSSH
	AppFTP
	AppSMTP

	// NumApps is the number of labels; App values are always below it.
	NumApps = int(AppSMTP) + 1
)

// Apps lists every label in display order.
var Apps = []App{AppHTTP, AppHTTPS, AppDNS, AppSSH, AppFTP, AppSMTP, AppUnknown}

var appNames = [...]string{
	AppUnknown: "Unknown",
	AppHTTP:    "HTTP",
	AppHTTPS:   "HTTPS",
	AppDNS:     "DNS",
	AppSSH:     "SSH",
	AppFTP:     "FTP",
	AppSMTP:    "SMTP",
}

func (a App) String() string {
	if int(a) < len(appNames) {
		return appNames[a]
	}
	return appNames[AppUnknown]
}

// ParseApp is the inverse of App.String. It is case-insensitive.
func ParseApp(s string) (App, bool) {
	for i, name := range appNames {
		if strings.EqualFold(name, s) {
			return App(i), true
		}
	}
	return AppUnknown, false
}

// Classification is the application label of a packet plus a human description.
type Classification struct {
	App         App
	Description string
}
