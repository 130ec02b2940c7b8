package embeddedmqtt

import (
	"errors"

	"github.com/mochi-mqtt/server/v2/hooks/auth"

	"github.com/mikey-austin/np_relay/pkg/np"
)

// loopbackRemotes match clients connecting from this host.
var loopbackRemotes = []auth.RString{"127.0.0.1:*", "[::1]:*"}

// newLedger builds the access rules. The publisher may write anything under
// the topic base; every other client may only read station results.
// Auth rules are evaluated in order, so a wrong password for the publisher
// name is refused before the anonymous rule is reached.
func newLedger(cfg Config) (*auth.Ledger, error) {
	if !cfg.AllowAnonymous && cfg.Username == "" {
		return nil, errors.New("embedded mqtt requires allow_anonymous or username")
	}
	publish := auth.Filters{auth.RString(cfg.TopicBase + "/#"): auth.ReadWrite}
	results := auth.RString(np.TopicNowPlaying(cfg.TopicBase, "+"))

	ledger := &auth.Ledger{}
	if cfg.Username != "" {
		ledger.Auth = append(ledger.Auth,
			auth.AuthRule{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true},
			auth.AuthRule{Username: auth.RString(cfg.Username), Allow: false},
		)
		ledger.ACL = append(ledger.ACL, auth.ACLRule{Username: auth.RString(cfg.Username), Filters: publish})
	} else {
		for _, remote := range loopbackRemotes {
			ledger.ACL = append(ledger.ACL, auth.ACLRule{Remote: remote, Filters: publish})
		}
	}
	if cfg.AllowAnonymous {
		ledger.Auth = append(ledger.Auth, auth.AuthRule{Allow: true})
	}
	ledger.ACL = append(ledger.ACL, auth.ACLRule{Filters: auth.Filters{
		results: auth.ReadOnly,
		"#":     auth.Deny,
	}})
	return ledger, nil
}
