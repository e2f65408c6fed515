// Package bus is the in-process message fabric the services talk over.
// Topics are token sequences, subscriptions may use MQTT-style wildcards,
// and retained messages replay to late subscribers. Delivery never blocks
// a publisher: a full subscriber queue drops its oldest message.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Wildcard tokens. "+" matches exactly one level; "#" matches any
// remainder, including none. Both are reserved: publishing to a topic
// containing them is undefined.
const (
	WildcardOne  = "+"
	WildcardRest = "#"
)

var ErrDisconnected = errors.New("bus: connection closed")

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of comparable tokens, strings and integers in
// practice. Build with T or a literal; T validates token kinds.
type Topic []any

// T builds a Topic, panicking on token kinds that cannot be used as map
// keys (slices, maps, funcs). Failing at construction keeps the trie safe.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		switch tok.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64:
		default:
			panic("bus: topic token must be a string, bool or integer")
		}
	}
	return Topic(tokens)
}

func (t Topic) Len() int     { return len(t) }
func (t Topic) At(i int) any { return t[i] }

// Append returns a new Topic with extra tokens; the receiver is unchanged.
func (t Topic) Append(tokens ...any) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	out = append(out, T(tokens...)...)
	return out
}

func (t Topic) Equal(o Topic) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic // set on requests; Reply publishes here
}

// CanReply reports whether the sender asked for a reply.
func (m *Message) CanReply() bool { return len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	pattern   Topic
	ch        chan *Message
	conn      *Connection
	closeOnce sync.Once
}

func (s *Subscription) Topic() Topic             { return s.pattern }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

func (s *Subscription) close() { s.closeOnce.Do(func() { close(s.ch) }) }

// -----------------------------------------------------------------------------
// Trie
// -----------------------------------------------------------------------------

// One trie carries both subscription patterns (nodes may be keyed by
// wildcard tokens) and retained messages (stored at concrete paths only).
type node struct {
	children map[any]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok any) *node {
	if n.children == nil {
		return nil
	}
	return n.children[tok]
}

func (n *node) ensureChild(tok any) *node {
	if n.children == nil {
		n.children = make(map[any]*node)
	}
	c := n.children[tok]
	if c == nil {
		c = &node{}
		n.children[tok] = c
	}
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu     sync.Mutex
	root   *node
	qLen   int
	reqSeq uint32
}

// NewBus creates a bus whose subscriptions buffer queueLen messages each.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers msg to every matching subscription and, for retained
// messages, stores it at the topic path. A nil retained payload clears.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.matchDeliver(b.root, msg.Topic, msg)

	if !msg.Retained {
		return
	}
	n := b.root
	for _, tok := range msg.Topic {
		n = n.ensureChild(tok)
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// matchDeliver fans msg out to the exact child, "+" and "#" branches.
// "#" also matches the parent level, so a sub on a/# sees a publish to a.
func (b *Bus) matchDeliver(n *node, toks Topic, msg *Message) {
	if n == nil {
		return
	}
	if len(toks) == 0 {
		deliverAll(n.subs, msg)
		if h := n.child(WildcardRest); h != nil {
			deliverAll(h.subs, msg)
		}
		return
	}
	b.matchDeliver(n.child(toks[0]), toks[1:], msg)
	b.matchDeliver(n.child(WildcardOne), toks[1:], msg)
	if h := n.child(WildcardRest); h != nil {
		deliverAll(h.subs, msg)
	}
}

func deliverAll(subs []*Subscription, msg *Message) {
	for _, s := range subs {
		deliver(s.ch, msg)
	}
}

// deliver enqueues without ever blocking the publisher: on a full queue
// the oldest queued message is discarded in favour of the new one.
func deliver(ch chan *Message, msg *Message) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.pattern {
		n = n.ensureChild(tok)
	}
	n.subs = append(n.subs, sub)

	b.replayRetained(b.root, sub.pattern, sub)
}

// replayRetained walks the retained store against the new pattern.
func (b *Bus) replayRetained(n *node, pat Topic, sub *Subscription) {
	if n == nil {
		return
	}
	if len(pat) == 0 {
		if n.retained != nil {
			deliver(sub.ch, n.retained)
		}
		return
	}
	switch pat[0] {
	case WildcardRest:
		b.replaySubtree(n, sub)
	case WildcardOne:
		for tok, c := range n.children {
			if tok == WildcardOne || tok == WildcardRest {
				continue
			}
			b.replayRetained(c, pat[1:], sub)
		}
	default:
		b.replayRetained(n.child(pat[0]), pat[1:], sub)
	}
}

func (b *Bus) replaySubtree(n *node, sub *Subscription) {
	if n.retained != nil {
		deliver(sub.ch, n.retained)
	}
	for tok, c := range n.children {
		if tok == WildcardOne || tok == WildcardRest {
			continue
		}
		b.replaySubtree(c, sub)
	}
}

func (b *Bus) removeSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	stack := make([]*node, 0, len(sub.pattern))
	for _, tok := range sub.pattern {
		c := n.child(tok)
		if c == nil {
			return
		}
		stack = append(stack, n)
		n = c
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(sub.pattern) - 1; i >= 0; i-- {
		parent := stack[i]
		key := sub.pattern[i]
		child := parent.child(key)
		if child == nil || len(child.subs) != 0 || len(child.children) != 0 || child.retained != nil {
			break
		}
		delete(parent.children, key)
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a pattern subscription owned by this connection.
// Retained messages matching the pattern arrive immediately.
func (c *Connection) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{
		pattern: pattern,
		ch:      make(chan *Message, c.bus.qLen),
		conn:    c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.removeSubscription(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	sub.close()
}

// Reply answers a request on its ReplyTo topic. No-op when the request
// did not ask for a reply.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if !req.CanReply() {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}

// Request publishes msg with a fresh ReplyTo inbox and returns the
// subscription on that inbox. The caller owns the subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	seq := atomic.AddUint32(&c.bus.reqSeq, 1)
	msg.ReplyTo = T("$reply", c.id, int(seq))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait performs Request and blocks for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, ErrDisconnected
		}
		return m, nil
	}
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.removeSubscription(sub)
		sub.close()
	}
}
