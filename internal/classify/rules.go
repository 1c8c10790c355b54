package classify

import "synthmigrate/internal/monitor"

// Rule maps source monitors to a target kind. Rules are evaluated in order
// and the first match wins.
type Rule struct {
	Name  string
	Match func(monitor.Record) bool
	Kind  TargetKind
}

func kindIn(kinds ...monitor.SourceKind) func(monitor.Record) bool {
	return func(r monitor.Record) bool {
		for _, k := range kinds {
			if r.Kind == k {
				return true
			}
		}
		return false
	}
}

// DefaultRules is the documented deterministic mapping. Dns, Ftp, Sftp and
// Udp have no rule and go to the model.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "http-https", Match: kindIn(monitor.KindHTTP, monitor.KindHTTPS), Kind: TargetHTTP},
		{Name: "ping", Match: kindIn(monitor.KindPing), Kind: TargetICMP},
		{Name: "tcp-mail", Match: kindIn(monitor.KindTCP, monitor.KindSMTP, monitor.KindPOP3, monitor.KindIMAP), Kind: TargetTCP},
		{Name: "multi-step", Match: kindIn(monitor.KindTransaction, monitor.KindMultiStepAPI), Kind: TargetBrowser},
	}
}
