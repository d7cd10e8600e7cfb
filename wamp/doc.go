// Package wamp defines the message vocabulary exchanged at the session
// boundary of the router: the closed set of message kinds, their typed
// payload structs, URI validation and pattern matching, and the id
// generators used for session-, router-, and global-scope identifiers.
//
// Wire encoding and framing are deliberately absent. Transports decode
// frames into these structs before handing them to the router and encode
// them again on the way out; the routing core only ever sees Message
// values.
package wamp
