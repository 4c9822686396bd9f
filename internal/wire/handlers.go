package wire

// Handlers holds one optional callback per event kind. A nil field ignores
// that kind.
type Handlers struct {
	OnConnectionAck     func(ConnectionAck)
	OnNewMessage        func(NewMessage)
	OnMessageDelivered  func(MessageDelivered)
	OnTyping            func(Typing)
	OnUserStatus        func(UserStatus)
	OnNotification      func(NotificationPushed)
	OnNotificationCount func(NotificationCount)
}

// Dispatch calls the callback for the event's kind and reports whether one
// was registered.
func (h Handlers) Dispatch(event Event) bool {
	switch e := event.(type) {
	case ConnectionAck:
		return call(h.OnConnectionAck, e)
	case NewMessage:
		return call(h.OnNewMessage, e)
	case MessageDelivered:
		return call(h.OnMessageDelivered, e)
	case Typing:
		return call(h.OnTyping, e)
	case UserStatus:
		return call(h.OnUserStatus, e)
	case NotificationPushed:
		return call(h.OnNotification, e)
	case NotificationCount:
		return call(h.OnNotificationCount, e)
	default:
		return false
	}
}

func call[T Event](fn func(T), event T) bool {
	if fn == nil {
		return false
	}
	fn(event)
	return true
}
