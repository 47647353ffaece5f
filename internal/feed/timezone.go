package feed

import "github.com/emersion/go-ical"

// Exchange and Outlook publish Windows zone names in TZID.
var windowsToIANA = map[string]string{
	"Pacific Standard Time":        "America/Los_Angeles",
	"Mountain Standard Time":       "America/Denver",
	"Central Standard Time":        "America/Chicago",
	"Eastern Standard Time":        "America/New_York",
	"Atlantic Standard Time":       "America/Halifax",
	"Newfoundland Standard Time":   "America/St_Johns",
	"Alaskan Standard Time":        "America/Anchorage",
	"Hawaiian Standard Time":       "Pacific/Honolulu",
	"GMT Standard Time":            "Europe/London",
	"Central Europe Standard Time": "Europe/Paris",
	"W. Europe Standard Time":      "Europe/Berlin",
}

func normalizeComponentTimezones(comp *ical.Component) {
	for _, name := range []string{ical.PropDateTimeStart, ical.PropDateTimeEnd, ical.PropExceptionDates} {
		for i := range comp.Props[name] {
			prop := &comp.Props[name][i]
			if tzid := prop.Params.Get(ical.ParamTimezoneID); tzid != "" {
				if iana, ok := windowsToIANA[tzid]; ok {
					prop.Params.Set(ical.ParamTimezoneID, iana)
				}
			}
		}
	}
}
