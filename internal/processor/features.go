package processor

import "github.com/meszmate/rosterd/internal/xmpp/disco"

// Features returns what roster processing advertises to clients
func Features() disco.Info {
	return disco.Info{
		Features: []disco.Feature{
			disco.FeatureRoster,
			disco.FeatureRosterDynamic,
		},
		StreamFeatures: []disco.Feature{
			disco.FeatureRosterVer,
		},
	}
}
