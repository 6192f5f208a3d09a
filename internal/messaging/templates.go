package messaging

import (
	"fmt"
	"regexp"
	"strings"
)

// sanitizeParam strips the characters the template contract forbids,
// collapses newlines, and caps length so a user-controlled parameter
// (a rider name, a trip note) can't break out of a rendered SMS body.
func sanitizeParam(s string) string {
	s = stripCharsRegexp.ReplaceAllString(s, "")
	s = newlineRegexp.ReplaceAllString(s, " ")
	if len(s) > 1000 {
		s = s[:1000]
	}
	return s
}

var (
	stripCharsRegexp = regexp.MustCompile(`[<>"'&]`)
	newlineRegexp    = regexp.MustCompile(`\r?\n`)
)

func sanitizeParams(params map[string]string) map[string]string {
	clean := make(map[string]string, len(params))
	for k, v := range params {
		clean[k] = sanitizeParam(v)
	}
	return clean
}

// templates renders each named template against its sanitized params.
// Unknown templates fall back to a generic rendering of the params so a
// caller adding a template elsewhere in the codebase is never silently
// dropped.
var templates = map[string]func(params map[string]string) string{
	"otp_code": func(p map[string]string) string {
		return fmt.Sprintf("Your verification code is: %s. This code expires in 5 minutes.", p["code"])
	},
	"trip_requested": func(p map[string]string) string {
		return fmt.Sprintf("New trip request near %s. Pickup in %s min.", p["pickup"], p["eta_min"])
	},
	"trip_accepted": func(p map[string]string) string {
		return fmt.Sprintf("Your driver %s is on the way, arriving in %s min.", p["driver_name"], p["eta_min"])
	},
	"trip_driver_arrived": func(p map[string]string) string {
		return fmt.Sprintf("Your driver has arrived at %s.", p["pickup"])
	},
	"trip_started": func(p map[string]string) string {
		return "Your trip has started. Have a safe ride."
	},
	"trip_completed": func(p map[string]string) string {
		return fmt.Sprintf("Trip completed. Total fare: %s.", p["fare"])
	},
	"trip_cancelled": func(p map[string]string) string {
		return fmt.Sprintf("Trip cancelled: %s.", p["reason"])
	},
	"payment_received": func(p map[string]string) string {
		return fmt.Sprintf("Payment of %s received for your trip.", p["amount"])
	},
}

func renderTemplate(name string, params map[string]string) string {
	clean := sanitizeParams(params)
	if render, ok := templates[name]; ok {
		return render(clean)
	}
	var parts []string
	for k, v := range clean {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}
