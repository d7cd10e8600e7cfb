package ws

import (
	"encoding/json"
	"fmt"

	"github.com/wampkit/wampkit/wamp"
)

// The wire format is the standard JSON array framing: the first element
// is the numeric message kind, the rest are positional fields. Options,
// args, and kwargs trail optionally and are omitted when empty.

func encodeMessage(msg wamp.Message) ([]byte, error) {
	var arr []any
	switch m := msg.(type) {
	case *wamp.Hello:
		arr = []any{wamp.KindHello, m.Realm, orEmpty(m.Details)}
	case *wamp.Welcome:
		arr = []any{wamp.KindWelcome, m.Session, orEmpty(m.Details)}
	case *wamp.Abort:
		arr = []any{wamp.KindAbort, orEmpty(m.Details), m.Reason}
	case *wamp.Challenge:
		arr = []any{wamp.KindChallenge, m.AuthMethod, orEmpty(m.Extra)}
	case *wamp.Authenticate:
		arr = []any{wamp.KindAuthenticate, m.Signature, orEmpty(m.Extra)}
	case *wamp.Goodbye:
		arr = []any{wamp.KindGoodbye, orEmpty(m.Details), m.Reason}
	case *wamp.Error:
		arr = appendPayload([]any{wamp.KindError, m.ErrKind, m.Request, orEmpty(m.Details), m.Error}, m.Args, m.Kwargs)
	case *wamp.Publish:
		arr = appendPayload([]any{wamp.KindPublish, m.Request, orEmpty(m.Options), m.Topic}, m.Args, m.Kwargs)
	case *wamp.Published:
		arr = []any{wamp.KindPublished, m.Request, m.Publication}
	case *wamp.Subscribe:
		arr = []any{wamp.KindSubscribe, m.Request, orEmpty(m.Options), m.Topic}
	case *wamp.Subscribed:
		arr = []any{wamp.KindSubscribed, m.Request, m.Subscription}
	case *wamp.Unsubscribe:
		arr = []any{wamp.KindUnsubscribe, m.Request, m.Subscription}
	case *wamp.Unsubscribed:
		arr = []any{wamp.KindUnsubscribed, m.Request}
	case *wamp.Event:
		arr = appendPayload([]any{wamp.KindEvent, m.Subscription, m.Publication, orEmpty(m.Details)}, m.Args, m.Kwargs)
	case *wamp.Call:
		arr = appendPayload([]any{wamp.KindCall, m.Request, orEmpty(m.Options), m.Procedure}, m.Args, m.Kwargs)
	case *wamp.Cancel:
		arr = []any{wamp.KindCancel, m.Request, orEmpty(m.Options)}
	case *wamp.Result:
		arr = appendPayload([]any{wamp.KindResult, m.Request, orEmpty(m.Details)}, m.Args, m.Kwargs)
	case *wamp.Register:
		arr = []any{wamp.KindRegister, m.Request, orEmpty(m.Options), m.Procedure}
	case *wamp.Registered:
		arr = []any{wamp.KindRegistered, m.Request, m.Registration}
	case *wamp.Unregister:
		arr = []any{wamp.KindUnregister, m.Request, m.Registration}
	case *wamp.Unregistered:
		arr = []any{wamp.KindUnregistered, m.Request}
	case *wamp.Invocation:
		arr = appendPayload([]any{wamp.KindInvocation, m.Request, m.Registration, orEmpty(m.Details)}, m.Args, m.Kwargs)
	case *wamp.Interrupt:
		arr = []any{wamp.KindInterrupt, m.Request, orEmpty(m.Options)}
	case *wamp.Yield:
		arr = appendPayload([]any{wamp.KindYield, m.Request, orEmpty(m.Options)}, m.Args, m.Kwargs)
	default:
		return nil, fmt.Errorf("ws: cannot encode message kind %v", msg.Kind())
	}
	return json.Marshal(arr)
}

func orEmpty(d wamp.Dict) wamp.Dict {
	if d == nil {
		return wamp.Dict{}
	}
	return d
}

func appendPayload(arr []any, args []any, kwargs wamp.Dict) []any {
	if len(args) > 0 || len(kwargs) > 0 {
		if args == nil {
			args = []any{}
		}
		arr = append(arr, args)
	}
	if len(kwargs) > 0 {
		arr = append(arr, kwargs)
	}
	return arr
}

func decodeMessage(data []byte) (wamp.Message, error) {
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("ws: malformed frame: %w", err)
	}
	if len(arr) < 1 {
		return nil, fmt.Errorf("ws: empty frame")
	}
	kind, ok := asID(arr[0])
	if !ok {
		return nil, fmt.Errorf("ws: non-numeric message kind")
	}

	d := frameDecoder{fields: arr[1:]}
	var msg wamp.Message
	switch wamp.MessageKind(kind) {
	case wamp.KindHello:
		msg = &wamp.Hello{Realm: d.uri(0), Details: d.dict(1)}
	case wamp.KindWelcome:
		msg = &wamp.Welcome{Session: d.id(0), Details: d.dict(1)}
	case wamp.KindAbort:
		msg = &wamp.Abort{Details: d.dict(0), Reason: d.uri(1)}
	case wamp.KindChallenge:
		msg = &wamp.Challenge{AuthMethod: d.str(0), Extra: d.dict(1)}
	case wamp.KindAuthenticate:
		msg = &wamp.Authenticate{Signature: d.str(0), Extra: d.dict(1)}
	case wamp.KindGoodbye:
		msg = &wamp.Goodbye{Details: d.dict(0), Reason: d.uri(1)}
	case wamp.KindError:
		msg = &wamp.Error{
			ErrKind: wamp.MessageKind(d.id(0)),
			Request: d.id(1),
			Details: d.dict(2),
			Error:   d.uri(3),
			Args:    d.list(4),
			Kwargs:  d.dict(5),
		}
	case wamp.KindPublish:
		msg = &wamp.Publish{Request: d.id(0), Options: d.dict(1), Topic: d.uri(2), Args: d.list(3), Kwargs: d.dict(4)}
	case wamp.KindPublished:
		msg = &wamp.Published{Request: d.id(0), Publication: d.id(1)}
	case wamp.KindSubscribe:
		msg = &wamp.Subscribe{Request: d.id(0), Options: d.dict(1), Topic: d.uri(2)}
	case wamp.KindSubscribed:
		msg = &wamp.Subscribed{Request: d.id(0), Subscription: d.id(1)}
	case wamp.KindUnsubscribe:
		msg = &wamp.Unsubscribe{Request: d.id(0), Subscription: d.id(1)}
	case wamp.KindUnsubscribed:
		msg = &wamp.Unsubscribed{Request: d.id(0)}
	case wamp.KindEvent:
		msg = &wamp.Event{Subscription: d.id(0), Publication: d.id(1), Details: d.dict(2), Args: d.list(3), Kwargs: d.dict(4)}
	case wamp.KindCall:
		msg = &wamp.Call{Request: d.id(0), Options: d.dict(1), Procedure: d.uri(2), Args: d.list(3), Kwargs: d.dict(4)}
	case wamp.KindCancel:
		msg = &wamp.Cancel{Request: d.id(0), Options: d.dict(1)}
	case wamp.KindResult:
		msg = &wamp.Result{Request: d.id(0), Details: d.dict(1), Args: d.list(2), Kwargs: d.dict(3)}
	case wamp.KindRegister:
		msg = &wamp.Register{Request: d.id(0), Options: d.dict(1), Procedure: d.uri(2)}
	case wamp.KindRegistered:
		msg = &wamp.Registered{Request: d.id(0), Registration: d.id(1)}
	case wamp.KindUnregister:
		msg = &wamp.Unregister{Request: d.id(0), Registration: d.id(1)}
	case wamp.KindUnregistered:
		msg = &wamp.Unregistered{Request: d.id(0)}
	case wamp.KindInvocation:
		msg = &wamp.Invocation{Request: d.id(0), Registration: d.id(1), Details: d.dict(2), Args: d.list(3), Kwargs: d.dict(4)}
	case wamp.KindInterrupt:
		msg = &wamp.Interrupt{Request: d.id(0), Options: d.dict(1)}
	case wamp.KindYield:
		msg = &wamp.Yield{Request: d.id(0), Options: d.dict(1), Args: d.list(2), Kwargs: d.dict(3)}
	default:
		return nil, fmt.Errorf("ws: unknown message kind %d", kind)
	}
	if d.err != nil {
		return nil, fmt.Errorf("ws: malformed %v frame: %w", wamp.MessageKind(kind), d.err)
	}
	return msg, nil
}

// frameDecoder reads positional fields out of a decoded frame, recording
// the first type mismatch instead of failing field by field.
type frameDecoder struct {
	fields []any
	err    error
}

func (d *frameDecoder) field(i int) (any, bool) {
	if i >= len(d.fields) {
		return nil, false
	}
	return d.fields[i], true
}

func (d *frameDecoder) id(i int) wamp.ID {
	v, ok := d.field(i)
	if !ok {
		d.fail(i, "missing id field")
		return 0
	}
	n, ok := asID(v)
	if !ok {
		d.fail(i, "expected id")
		return 0
	}
	return wamp.ID(n)
}

func (d *frameDecoder) uri(i int) wamp.URI {
	v, ok := d.field(i)
	if !ok {
		d.fail(i, "missing uri field")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(i, "expected uri")
		return ""
	}
	return wamp.URI(s)
}

func (d *frameDecoder) str(i int) string {
	v, ok := d.field(i)
	if !ok {
		d.fail(i, "missing string field")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(i, "expected string")
		return ""
	}
	return s
}

// dict and list are optional trailing fields; absence is not an error.

func (d *frameDecoder) dict(i int) wamp.Dict {
	v, ok := d.field(i)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		d.fail(i, "expected dict")
		return nil
	}
	return wamp.Dict(m)
}

func (d *frameDecoder) list(i int) []any {
	v, ok := d.field(i)
	if !ok {
		return nil
	}
	l, ok := v.([]any)
	if !ok {
		d.fail(i, "expected list")
		return nil
	}
	return l
}

func (d *frameDecoder) fail(i int, msg string) {
	if d.err == nil {
		d.err = fmt.Errorf("field %d: %s", i, msg)
	}
}

func asID(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return 0, false
		}
		return uint64(i), true
	}
	return 0, false
}
