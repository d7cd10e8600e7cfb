package wamp

// MessageKind enumerates the closed set of message types a session can
// exchange with the router. The numeric values follow the WAMP basic
// profile so transports can use them directly as frame type codes.
type MessageKind int

const (
	KindHello        MessageKind = 1
	KindWelcome      MessageKind = 2
	KindAbort        MessageKind = 3
	KindChallenge    MessageKind = 4
	KindAuthenticate MessageKind = 5
	KindGoodbye      MessageKind = 6
	KindError        MessageKind = 8
	KindPublish      MessageKind = 16
	KindPublished    MessageKind = 17
	KindSubscribe    MessageKind = 32
	KindSubscribed   MessageKind = 33
	KindUnsubscribe  MessageKind = 34
	KindUnsubscribed MessageKind = 35
	KindEvent        MessageKind = 36
	KindCall         MessageKind = 48
	KindCancel       MessageKind = 49
	KindResult       MessageKind = 50
	KindRegister     MessageKind = 64
	KindRegistered   MessageKind = 65
	KindUnregister   MessageKind = 66
	KindUnregistered MessageKind = 67
	KindInvocation   MessageKind = 68
	KindInterrupt    MessageKind = 69
	KindYield        MessageKind = 70
)

var kindNames = map[MessageKind]string{
	KindHello:        "HELLO",
	KindWelcome:      "WELCOME",
	KindAbort:        "ABORT",
	KindChallenge:    "CHALLENGE",
	KindAuthenticate: "AUTHENTICATE",
	KindGoodbye:      "GOODBYE",
	KindError:        "ERROR",
	KindPublish:      "PUBLISH",
	KindPublished:    "PUBLISHED",
	KindSubscribe:    "SUBSCRIBE",
	KindSubscribed:   "SUBSCRIBED",
	KindUnsubscribe:  "UNSUBSCRIBE",
	KindUnsubscribed: "UNSUBSCRIBED",
	KindEvent:        "EVENT",
	KindCall:         "CALL",
	KindCancel:       "CANCEL",
	KindResult:       "RESULT",
	KindRegister:     "REGISTER",
	KindRegistered:   "REGISTERED",
	KindUnregister:   "UNREGISTER",
	KindUnregistered: "UNREGISTERED",
	KindInvocation:   "INVOCATION",
	KindInterrupt:    "INTERRUPT",
	KindYield:        "YIELD",
}

func (k MessageKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "UNKNOWN"
}

// Message is implemented by every message struct in this package.
type Message interface {
	Kind() MessageKind
}

// Hello opens a session, naming the realm to join and carrying the
// peer's roles and offered auth methods in Details.
type Hello struct {
	Realm   URI
	Details Dict
}

// Welcome acknowledges a successful handshake with the assigned
// session id.
type Welcome struct {
	Session ID
	Details Dict
}

// Abort terminates a session (or a handshake) with a reason URI.
// Fatal; no reply is expected.
type Abort struct {
	Details Dict
	Reason  URI
}

// Challenge asks the joining peer to prove its identity via the named
// auth method.
type Challenge struct {
	AuthMethod string
	Extra      Dict
}

// Authenticate answers a Challenge with a signature.
type Authenticate struct {
	Signature string
	Extra     Dict
}

// Goodbye initiates or acknowledges a graceful close.
type Goodbye struct {
	Details Dict
	Reason  URI
}

// Error reports the failure of a prior request. ErrKind names the kind
// of the failed request so the peer can route the error to the right
// pending operation.
type Error struct {
	ErrKind MessageKind
	Request ID
	Details Dict
	Error   URI
	Args    []any
	Kwargs  Dict
}

// Publish asks the broker to fan an event out to matching subscribers.
type Publish struct {
	Request ID
	Options Dict
	Topic   URI
	Args    []any
	Kwargs  Dict
}

// Published acknowledges a Publish that requested acknowledgement.
type Published struct {
	Request     ID
	Publication ID
}

// Subscribe asks the broker for events on a topic pattern.
type Subscribe struct {
	Request ID
	Options Dict
	Topic   URI
}

// Subscribed acknowledges a Subscribe.
type Subscribed struct {
	Request      ID
	Subscription ID
}

// Unsubscribe withdraws a subscription.
type Unsubscribe struct {
	Request      ID
	Subscription ID
}

// Unsubscribed acknowledges an Unsubscribe.
type Unsubscribed struct {
	Request ID
}

// Event delivers a publication to one subscriber.
type Event struct {
	Subscription ID
	Publication  ID
	Details      Dict
	Args         []any
	Kwargs       Dict
}

// Call asks the dealer to invoke a procedure.
type Call struct {
	Request   ID
	Options   Dict
	Procedure URI
	Args      []any
	Kwargs    Dict
}

// Cancel asks the dealer to cancel an outstanding call.
type Cancel struct {
	Request ID
	Options Dict
}

// Result delivers a call result (terminal or progressive) to the caller.
type Result struct {
	Request ID
	Details Dict
	Args    []any
	Kwargs  Dict
}

// Register offers a procedure endpoint to the dealer.
type Register struct {
	Request   ID
	Options   Dict
	Procedure URI
}

// Registered acknowledges a Register.
type Registered struct {
	Request      ID
	Registration ID
}

// Unregister withdraws a registration.
type Unregister struct {
	Request      ID
	Registration ID
}

// Unregistered acknowledges an Unregister.
type Unregistered struct {
	Request ID
}

// Invocation delivers a call to a callee under a fresh invocation id;
// the caller's request id never crosses this boundary.
type Invocation struct {
	Request      ID
	Registration ID
	Details      Dict
	Args         []any
	Kwargs       Dict
}

// Interrupt advises a callee that an invocation was cancelled. The
// callee may ignore it.
type Interrupt struct {
	Request ID
	Options Dict
}

// Yield returns a callee's (possibly progressive) result for an
// invocation.
type Yield struct {
	Request ID
	Options Dict
	Args    []any
	Kwargs  Dict
}

func (*Hello) Kind() MessageKind        { return KindHello }
func (*Welcome) Kind() MessageKind      { return KindWelcome }
func (*Abort) Kind() MessageKind        { return KindAbort }
func (*Challenge) Kind() MessageKind    { return KindChallenge }
func (*Authenticate) Kind() MessageKind { return KindAuthenticate }
func (*Goodbye) Kind() MessageKind      { return KindGoodbye }
func (*Error) Kind() MessageKind        { return KindError }
func (*Publish) Kind() MessageKind      { return KindPublish }
func (*Published) Kind() MessageKind    { return KindPublished }
func (*Subscribe) Kind() MessageKind    { return KindSubscribe }
func (*Subscribed) Kind() MessageKind   { return KindSubscribed }
func (*Unsubscribe) Kind() MessageKind  { return KindUnsubscribe }
func (*Unsubscribed) Kind() MessageKind { return KindUnsubscribed }
func (*Event) Kind() MessageKind        { return KindEvent }
func (*Call) Kind() MessageKind         { return KindCall }
func (*Cancel) Kind() MessageKind       { return KindCancel }
func (*Result) Kind() MessageKind       { return KindResult }
func (*Register) Kind() MessageKind     { return KindRegister }
func (*Registered) Kind() MessageKind   { return KindRegistered }
func (*Unregister) Kind() MessageKind   { return KindUnregister }
func (*Unregistered) Kind() MessageKind { return KindUnregistered }
func (*Invocation) Kind() MessageKind   { return KindInvocation }
func (*Interrupt) Kind() MessageKind    { return KindInterrupt }
func (*Yield) Kind() MessageKind        { return KindYield }

// Compile-time closed-set check.
var _ = []Message{
	(*Hello)(nil), (*Welcome)(nil), (*Abort)(nil), (*Challenge)(nil),
	(*Authenticate)(nil), (*Goodbye)(nil), (*Error)(nil), (*Publish)(nil),
	(*Published)(nil), (*Subscribe)(nil), (*Subscribed)(nil),
	(*Unsubscribe)(nil), (*Unsubscribed)(nil), (*Event)(nil), (*Call)(nil),
	(*Cancel)(nil), (*Result)(nil), (*Register)(nil), (*Registered)(nil),
	(*Unregister)(nil), (*Unregistered)(nil), (*Invocation)(nil),
	(*Interrupt)(nil), (*Yield)(nil),
}
