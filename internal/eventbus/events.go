package eventbus

// Event types published by the reminder scheduler.
const (
	TypeReminderTick = "reminder.tick"
	TypeNotifySent   = "notify.sent"
	TypeNotifyFailed = "notify.failed"
	TypeChatLinked   = "chat.linked"
	TypeChatUnlinked = "chat.unlinked"
)

// TickData is the payload of TypeReminderTick.
type TickData struct {
	Owners    int `json:"owners"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

// DeliveryData is the payload of TypeNotifySent and TypeNotifyFailed.
type DeliveryData struct {
	Owner   string `json:"owner"`
	Kind    string `json:"kind"`
	Key     string `json:"key"`
	Channel string `json:"channel"`
}

// LinkData is the payload of TypeChatLinked and TypeChatUnlinked.
type LinkData struct {
	Owner  string `json:"owner"`
	ChatID int64  `json:"chat_id"`
}
