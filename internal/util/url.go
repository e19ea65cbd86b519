package util

import (
	"net/url"
	"strings"
)

// ContainsRedirectURI reports whether candidate exactly matches one of the
// registered redirect URIs. No prefix or wildcard matching is done.
func ContainsRedirectURI(registered []string, candidate string) bool {
	if candidate == "" || strings.ContainsAny(candidate, "\r\n") {
		return false
	}
	for _, uri := range registered {
		if uri == candidate {
			return true
		}
	}
	return false
}

// AppendQuery adds params to the query string of base, keeping any query it already has.
func AppendQuery(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
