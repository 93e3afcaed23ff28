package types

// Session holds the authenticated user's identity and auth token. It is
// created at login, persisted in the on-device session store, and destroyed
// at logout.
type Session struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// Valid reports whether the session carries enough data to authenticate.
func (s Session) Valid() bool {
	return s.UserID != "" && s.Token != ""
}

// PushTokenRegistration is the payload sent over the realtime channel after
// every successful handshake so the server can target this device for push
// delivery.
type PushTokenRegistration struct {
	Token           string `json:"token"`
	Platform        string `json:"platform"`
	DeviceName      string `json:"deviceName,omitempty"`
	DeviceYearClass int    `json:"deviceYearClass,omitempty"`
	IsDevice        bool   `json:"isDevice"`
}
