package cloud

import (
	"context"
	"fmt"
	"slices"

	"github.com/stefannilsson/arduino-iot-js/internal/senml"
)

// Record is one decoded value delivered to a Handler.
//
// For property topics Name is the SenML record name and Time the record's
// base time in milliseconds. Monitor output arrives as a single record with
// a string Value and no Name. Payloads that are not SenML arrive as a single
// record whose Value is the raw []byte.
type Record struct {
	Topic string
	Name  string
	Value any
	Time  int64
}

// Handler receives records routed to a subscription.
//
// Handlers for one topic run sequentially on the transport's delivery
// goroutine and should not block for extended periods.
type Handler func(Record)

// handlerEntry is one registration. filter, when set, restricts delivery to
// records with that name.
type handlerEntry struct {
	handler Handler
	filter  string
}

// topicEntry holds the registrations of one topic in delivery order.
type topicEntry struct {
	handlers []*handlerEntry
}

// Subscribe registers handler for topic.
//
// Only the first registration on a topic subscribes on the wire and waits
// for the broker's acknowledgement; later registrations append to the
// topic's handler list and return immediately. Registering the same handler
// twice delivers every record to it twice.
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return ErrInvalidCallback
	}
	return c.subscribe(ctx, topic, &handlerEntry{handler: handler})
}

// OnPropertyValue registers handler for the values of one property of a
// thing. All properties of a thing share one transport subscription.
func (c *Client) OnPropertyValue(ctx context.Context, thingID, name string, handler Handler) error {
	if name == "" {
		return ErrInvalidName
	}
	if handler == nil {
		return ErrInvalidCallback
	}
	topic := Topics{}.PropertyOutput(thingID)
	return c.subscribe(ctx, topic, &handlerEntry{handler: handler, filter: name})
}

func (c *Client) subscribe(ctx context.Context, topic string, entry *handlerEntry) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	conn := c.connection()
	if conn == nil {
		return ErrNotConnected
	}

	c.subMu.Lock()
	if existing, ok := c.topics[topic]; ok {
		existing.handlers = append(existing.handlers, entry)
		c.subMu.Unlock()
		return nil
	}
	c.topics[topic] = &topicEntry{handlers: []*handlerEntry{entry}}
	c.order = append(c.order, topic)
	c.subMu.Unlock()

	if err := conn.Subscribe(ctx, topic); err != nil {
		c.removeTopic(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	c.getLogger().Debug("subscribed", "topic", topic)
	return nil
}

// Unsubscribe drops every handler registered for topic and removes the
// transport subscription. Dispatch to the topic stops immediately; a record
// already being dispatched may still reach its handlers.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	conn := c.connection()
	if conn == nil {
		return ErrNotConnected
	}

	c.removeTopic(topic)

	if err := conn.Unsubscribe(ctx, topic); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}

	c.getLogger().Debug("unsubscribed", "topic", topic)
	return nil
}

// SubscriptionCount returns the number of subscribed topics.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.topics)
}

// HandlerCount returns the number of handlers registered for topic.
func (c *Client) HandlerCount(topic string) int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if entry, ok := c.topics[topic]; ok {
		return len(entry.handlers)
	}
	return 0
}

// SubscribedTopics returns the subscribed topics in the order they were
// first subscribed.
func (c *Client) SubscribedTopics() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return slices.Clone(c.order)
}

func (c *Client) removeTopic(topic string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if _, ok := c.topics[topic]; !ok {
		return
	}
	delete(c.topics, topic)
	c.order = slices.DeleteFunc(c.order, func(t string) bool { return t == topic })
}

func (c *Client) clearTopics() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.topics = make(map[string]*topicEntry)
	c.order = nil
}

// dispatch decodes msg once and hands every record to the topic's handlers
// in registration order.
func (c *Client) dispatch(gen uint64, msg Message) {
	c.mu.Lock()
	stale := gen != c.gen
	logger := c.logger
	c.mu.Unlock()
	if stale {
		return
	}

	c.subMu.RLock()
	var handlers []*handlerEntry
	if entry, ok := c.topics[msg.Topic]; ok {
		handlers = slices.Clone(entry.handlers)
	}
	c.subMu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("dropping message for unknown topic", "topic", msg.Topic)
		return
	}

	for _, rec := range decodeMessage(msg, logger) {
		for _, h := range handlers {
			if h.filter != "" && h.filter != rec.Name {
				continue
			}
			invoke(h.handler, rec, logger)
		}
	}
}

func decodeMessage(msg Message, logger Logger) []Record {
	if (Topics{}).IsMonitorOutput(msg.Topic) {
		return []Record{{Topic: msg.Topic, Value: string(msg.Payload)}}
	}

	decoded, err := senml.Decode(msg.Payload)
	if err != nil {
		logger.Debug("payload is not SenML, delivering raw bytes", "topic", msg.Topic, "error", err)
		return []Record{{Topic: msg.Topic, Value: msg.Payload}}
	}

	records := make([]Record, 0, len(decoded))
	for _, d := range decoded {
		records = append(records, Record{
			Topic: msg.Topic,
			Name:  d.Name,
			Value: d.Value,
			Time:  d.BaseTime,
		})
	}
	return records
}

// invoke calls handler, recovering and logging a panic.
func invoke(handler Handler, rec Record, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic recovered",
				"topic", rec.Topic,
				"name", rec.Name,
				"panic", r,
			)
		}
	}()
	handler(rec)
}
