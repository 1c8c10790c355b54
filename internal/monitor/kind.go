package monitor

import "strings"

// SourceKind is the Uptrends monitor type. The recognized set is closed;
// anything else is carried verbatim so the classifier can reject it.
type SourceKind string

const (
	KindHTTP         SourceKind = "Http"
	KindHTTPS        SourceKind = "Https"
	KindPing         SourceKind = "Ping"
	KindDNS          SourceKind = "Dns"
	KindSMTP         SourceKind = "Smtp"
	KindPOP3         SourceKind = "Pop3"
	KindIMAP         SourceKind = "Imap"
	KindFTP          SourceKind = "Ftp"
	KindSFTP         SourceKind = "Sftp"
	KindTCP          SourceKind = "Tcp"
	KindUDP          SourceKind = "Udp"
	KindTransaction  SourceKind = "Transaction"
	KindMultiStepAPI SourceKind = "MultiStepApi"
)

var sourceKinds = []SourceKind{
	KindHTTP, KindHTTPS, KindPing, KindDNS, KindSMTP, KindPOP3, KindIMAP,
	KindFTP, KindSFTP, KindTCP, KindUDP, KindTransaction, KindMultiStepAPI,
}

// SourceKinds returns the closed set of recognized source kinds.
func SourceKinds() []SourceKind {
	return append([]SourceKind(nil), sourceKinds...)
}

// ParseSourceKind maps s onto a recognized kind ignoring case. Unrecognized
// values are returned trimmed but otherwise untouched; callers check Valid.
func ParseSourceKind(s string) SourceKind {
	s = strings.TrimSpace(s)
	for _, k := range sourceKinds {
		if strings.EqualFold(string(k), s) {
			return k
		}
	}
	return SourceKind(s)
}

// Valid reports whether k is one of the recognized source kinds.
func (k SourceKind) Valid() bool {
	for _, known := range sourceKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k SourceKind) String() string { return string(k) }

// MultiStep reports whether monitors of this kind carry a step sequence.
func (k SourceKind) MultiStep() bool {
	return k == KindTransaction || k == KindMultiStepAPI
}
