package config

import (
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// DefaultSTUNURLs are used when STUN_URLS is unset.
const DefaultSTUNURLs = "stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302"

var (
	stunSchemes = []string{"stun:", "stuns:"}
	turnSchemes = []string{"turn:", "turns:"}
)

// ICEServers returns the STUN and TURN servers handed to peer connections.
func (c ICEConfig) ICEServers() ([]webrtc.ICEServer, error) {
	return ParseICEServers(c.STUNURLs, c.TURNURLs, c.TURNUsername, c.TURNCredential)
}

// ParseICEServers turns comma separated STUN and TURN URL lists into at most
// one server entry each. TURN entries carry the credentials and need both.
func ParseICEServers(stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if urls := splitCommaSeparated(stunURLs); len(urls) > 0 {
		if err := requireScheme(urls, stunSchemes); err != nil {
			return nil, errors.Wrap(err, "STUN_URLS")
		}
		servers = append(servers, webrtc.ICEServer{URLs: urls})
	}

	if urls := splitCommaSeparated(turnURLs); len(urls) > 0 {
		if err := requireScheme(urls, turnSchemes); err != nil {
			return nil, errors.Wrap(err, "TURN_URLS")
		}
		user, cred := strings.TrimSpace(turnUsername), strings.TrimSpace(turnCredential)
		if user == "" || cred == "" {
			return nil, errors.New("TURN_URLS needs TURN_USERNAME and TURN_CREDENTIAL")
		}
		servers = append(servers, webrtc.ICEServer{URLs: urls, Username: user, Credential: cred})
	}

	return servers, nil
}

// NormalizeSTUN prefixes bare host:port --stun entries with "stun:" and joins
// them into the STUN_URLS form.
func NormalizeSTUN(entries []string) string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !hasScheme(e, stunSchemes) {
			e = stunSchemes[0] + e
		}
		out = append(out, e)
	}
	return strings.Join(out, ",")
}

func requireScheme(urls []string, schemes []string) error {
	for _, u := range urls {
		if !hasScheme(u, schemes) {
			return errors.Errorf("%q: want one of %v", u, schemes)
		}
	}
	return nil
}

func hasScheme(url string, schemes []string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(url, s) {
			return true
		}
	}
	return false
}
