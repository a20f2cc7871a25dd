// Package canonical turns a request payload into the two byte forms used by
// signed contact registration requests.
//
// The canonical form is compact JSON: no insignificant whitespace, fields in
// insertion order, Unicode written literally and '<', '>', '&' left
// unescaped. It is the only form a signature is ever computed over.
//
// The send form carries the same document with a single space after every
// structural comma and colon. It is what goes on the wire as the request
// body; both forms decode to the same value.
//
//	p := canonical.New(
//	    canonical.F("phone", "+79001112233"),
//	    canonical.F("os_consent", true),
//	)
//
//	enc, err := canonical.Canonicalize(p)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// enc.Canonical: {"phone":"+79001112233","os_consent":true}
//	// enc.Send:      {"phone": "+79001112233", "os_consent": true}
//
// # Field Order
//
// Go maps have no order, so Payload keeps an explicit field list. Plain
// map[string]any values are accepted as well and are encoded with sorted
// keys, which is deterministic but usually not what a remote verifier
// expects. Structs are encoded in field declaration order.
package canonical
