package domain

import "strconv"

// Identity is the host-platform identity of the person behind a chat
// session, as asserted by a verified Telegram Mini-App launch.
type Identity struct {
	TelegramID int64
	FirstName  string
	LastName   *string
	Username   *string
}

// Key returns the stable string form used to key per-user state.
func (i Identity) Key() string { return "tg:" + strconv.FormatInt(i.TelegramID, 10) }
