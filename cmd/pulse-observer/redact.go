package main

import "net/url"

// redactDSN hides the password in a Postgres URL. DSNs that are not
// URLs (key=value form) are hidden entirely.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "REDACTED"
	}
	return u.Redacted()
}
