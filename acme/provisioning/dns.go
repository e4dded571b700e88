package provisioning

import (
	"github.com/miekg/dns"

	"github.com/tlsforge/acmecore/acme/keys"
)

// dns01TTL is the TTL stamped on the record DNS01Record builds. It has no
// bearing on validation outcome; a caller's own zone/provisioner is free to
// publish it with a different TTL.
const dns01TTL = 60

// DNS01Record builds the dns-01 TXT resource record for domain and
// keyAuthorization. It only constructs the record; publishing it to an
// authoritative zone is the caller's responsibility.
func DNS01Record(domain, keyAuthorization string) *dns.TXT {
	value := keys.DNS01RecordValue(keyAuthorization)
	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   "_acme-challenge." + dns.Fqdn(domain),
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    dns01TTL,
		},
		Txt: []string{value},
	}
}
