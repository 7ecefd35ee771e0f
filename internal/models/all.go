package models

// All lists every persisted model, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&APIKey{},
		&Media{},
		&Shortlink{},
		&Settings{},
		&Profile{},
		&SocialLink{},
		&OTP{},
		&AuditLog{},
	}
}
