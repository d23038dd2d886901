package mqtt

import "fmt"

// Subscribe registers handler for topic (wildcards allowed). The
// subscription is remembered and replayed after a reconnect; if the
// broker refuses it, it is forgotten again.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.track(topic, &subscription{qos: qos, handler: handler})

	err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed)
	if err != nil {
		c.track(topic, nil)
	}
	return err
}

// Unsubscribe drops a subscription. Messages already in flight may still
// reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.track(topic, nil)
	return await(c.client.Unsubscribe(topic), ErrUnsubscribeFailed)
}

// HasSubscription reports whether topic is tracked for replay.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// track records sub for replay, or forgets topic when sub is nil.
func (c *Client) track(topic string, sub *subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if sub == nil {
		delete(c.subscriptions, topic)
		return
	}
	c.subscriptions[topic] = *sub
}
