/*
	Package jsonrpc2 is the wire model of JSONRPC 2.0 as seen by a client.

	ID is the correlation id of a call. It is a tagged union of a number, a
	string or null, and it round-trips exactly through encoding and decoding.
	IDKind selects which variant a client generates.

	Response is the generic response envelope. Its Payload holds either a
	successful result or an ErrorObject, never both. Decoding is strict about
	that (and about the mandatory id) but tolerant of a missing or null
	"jsonrpc" member and of unknown members.

	Request, Notification and Batch are the outbound envelopes. Inbound frames
	are split and classified with ParseMessages before they are matched to a
	pending call or a subscription. Subscription notifications embed a
	SubscriptionPayload (or SubscriptionPayloadError) in their params.
*/
package jsonrpc2
